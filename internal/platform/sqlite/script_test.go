package sqlite

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanScript(t *testing.T) {
	raw := "-- header\r\nCREATE TABLE t (\n  a TEXT DEFAULT '--', -- trailing\n\n  b TEXT \"x--y\"\n);\n   \n"
	want := "CREATE TABLE t (\n  a TEXT DEFAULT '--',\n  b TEXT \"x--y\"\n);"
	assert.Equal(t, want, CleanScript(raw))
}

func TestCleanScript_Literals(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "пустая строка внутри литерала",
			raw:  "INSERT INTO t VALUES ('a\n\nb');",
			want: "INSERT INTO t VALUES ('a\n\nb');",
		},
		{
			name: "пробелы на краях строк литерала",
			raw:  "INSERT INTO t VALUES ('a  \n\n  b');  \n\n",
			want: "INSERT INTO t VALUES ('a  \n\n  b');",
		},
		{
			name: "кавычка и -- в блочном комментарии",
			raw:  "/* it's\n-- still comment */\nSELECT 1; -- tail",
			want: "/* it's\n-- still comment */\nSELECT 1;",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanScript(tt.raw))
		})
	}
}

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   []string
	}{
		{
			name:   "простые инструкции",
			script: "CREATE TABLE a (id INTEGER); CREATE TABLE b (id INTEGER);",
			want:   []string{"CREATE TABLE a (id INTEGER)", "CREATE TABLE b (id INTEGER)"},
		},
		{
			name:   "точка с запятой в литерале",
			script: "INSERT INTO t VALUES ('a;b'); SELECT 1",
			want:   []string{"INSERT INTO t VALUES ('a;b')", "SELECT 1"},
		},
		{
			name: "тело триггера",
			script: `CREATE TRIGGER trg AFTER INSERT ON t
BEGIN
  UPDATE t SET x = CASE WHEN NEW.x IS NULL THEN 0 ELSE NEW.x END WHERE id = NEW.id;
  INSERT INTO log VALUES (NEW.id);
END;
CREATE INDEX idx ON t (x);`,
			want: []string{
				`CREATE TRIGGER trg AFTER INSERT ON t
BEGIN
  UPDATE t SET x = CASE WHEN NEW.x IS NULL THEN 0 ELSE NEW.x END WHERE id = NEW.id;
  INSERT INTO log VALUES (NEW.id);
END`,
				"CREATE INDEX idx ON t (x)",
			},
		},
		{
			name:   "точка с запятой в блочном комментарии",
			script: "CREATE TABLE a (id INTEGER); /* one; two */ CREATE TABLE b (id INTEGER);",
			want:   []string{"CREATE TABLE a (id INTEGER)", "/* one; two */ CREATE TABLE b (id INTEGER)"},
		},
		{
			name:   "точка с запятой в строчном комментарии",
			script: "SELECT 1; -- a; b\nSELECT 2;",
			want:   []string{"SELECT 1", "-- a; b\nSELECT 2"},
		},
		{
			name:   "пустой скрипт",
			script: " ; ;\n",
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitStatements(tt.script))
		})
	}
}

func TestScriptMarkers(t *testing.T) {
	assert.True(t, HasTransactionControl("BEGIN TRANSACTION;\nCREATE TABLE a (id INTEGER);\nCOMMIT;"))
	assert.True(t, HasTransactionControl("CREATE TABLE a (id INTEGER); COMMIT;"))
	assert.True(t, HasTransactionControl("begin;\nselect 1;\nrollback;"))
	assert.False(t, HasTransactionControl("CREATE TABLE commits (id INTEGER);"))
	assert.False(t, HasTransactionControl("CREATE TRIGGER t AFTER INSERT ON a\nBEGIN\n  SELECT 1;\nEND;"))

	assert.True(t, HasForeignKeyPragma("pragma foreign_keys = off;"))
	assert.False(t, HasForeignKeyPragma("PRAGMA journal_mode = WAL;"))

	assert.True(t, IsTriggerDefinition("CREATE TABLE a (id INTEGER);\nCREATE TEMP TRIGGER x AFTER INSERT ON a BEGIN SELECT 1; END;"))
	assert.False(t, IsTriggerDefinition("CREATE TABLE triggers (id INTEGER);"))
}
