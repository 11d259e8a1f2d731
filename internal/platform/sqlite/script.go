package sqlite

import (
	"regexp"
	"strings"
)

var (
	txControlPattern  = regexp.MustCompile(`(?im)(?:^|;)\s*(?:BEGIN(?:\s+(?:DEFERRED|IMMEDIATE|EXCLUSIVE))?(?:\s+TRANSACTION)?\s*;|COMMIT\b|END\s+TRANSACTION\b|ROLLBACK\b)`)
	pragmaFKPattern   = regexp.MustCompile(`(?i)\bPRAGMA\s+foreign_keys\b`)
	triggerPattern    = regexp.MustCompile(`(?is)^\s*CREATE\s+(?:TEMP\s+|TEMPORARY\s+)?TRIGGER\b`)
	blockOpenPattern  = regexp.MustCompile(`(?i)\b(?:BEGIN|CASE)\b`)
	blockClosePattern = regexp.MustCompile(`(?i)\bEND\b`)
)

// CleanScript удаляет комментарии "--" вне строковых литералов и пустые строки.
// Строки внутри многострочного литерала сохраняются как есть, включая пустые.
// Блочные комментарии /* */ не удаляются. Границы инструкций и тела триггеров не меняются.
func CleanScript(raw string) string {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))

	var st scanState
	for _, line := range lines {
		continued := st.inLiteral()
		cut := len(line)
		for i := 0; i < len(line) && cut == len(line); i++ {
			switch st.step(line, i) {
			case tokenLineComment:
				cut = i
			case tokenBlockOpen, tokenBlockClose:
				i++
			}
		}

		kept := line[:cut]
		if !st.inLiteral() {
			kept = strings.TrimRight(kept, " \t")
		}
		if !continued && strings.TrimSpace(kept) == "" {
			continue
		}
		out = append(out, kept)
	}
	return strings.Join(out, "\n")
}

// SplitStatements делит скрипт на инструкции по ";" вне кавычек и комментариев.
// Точки с запятой внутри тела CREATE TRIGGER ... BEGIN ... END не разделяют инструкции.
func SplitStatements(script string) []string {
	var (
		stmts   []string
		current strings.Builder
		st      scanState
	)

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			stmts = append(stmts, s)
		}
		current.Reset()
	}

	for i := 0; i < len(script); i++ {
		c := script[i]
		switch st.step(script, i) {
		case tokenLineComment:
			// комментарий до конца строки
			j := strings.IndexByte(script[i:], '\n')
			if j < 0 {
				j = len(script) - i
			}
			current.WriteString(script[i : i+j])
			i += j - 1
			continue
		case tokenBlockOpen, tokenBlockClose:
			current.WriteString(script[i : i+2])
			i++
			continue
		case tokenTerminator:
			if insideTriggerBody(current.String()) {
				current.WriteByte(c)
				continue
			}
			flush()
			continue
		}
		current.WriteByte(c)
	}
	flush()
	return stmts
}

type token int

const (
	tokenOther token = iota
	tokenLineComment
	tokenBlockOpen
	tokenBlockClose
	tokenTerminator
)

// scanState - положение сканера относительно литералов и блочных комментариев.
type scanState struct {
	single, double, block bool
}

func (s *scanState) inLiteral() bool { return s.single || s.double }

// step учитывает байт text[i]. Для двухсимвольных токенов вызывающий пропускает второй байт.
func (s *scanState) step(text string, i int) token {
	c := text[i]
	next := byte(0)
	if i+1 < len(text) {
		next = text[i+1]
	}
	switch {
	case s.block:
		if c == '*' && next == '/' {
			s.block = false
			return tokenBlockClose
		}
	case c == '\'' && !s.double:
		s.single = !s.single
	case c == '"' && !s.single:
		s.double = !s.double
	case s.inLiteral():
	case c == '/' && next == '*':
		s.block = true
		return tokenBlockOpen
	case c == '-' && next == '-':
		return tokenLineComment
	case c == ';':
		return tokenTerminator
	}
	return tokenOther
}

// insideTriggerBody сообщает, что накопленный текст - незакрытое тело триггера.
func insideTriggerBody(stmt string) bool {
	if !triggerPattern.MatchString(stmt) {
		return false
	}
	opened := len(blockOpenPattern.FindAllStringIndex(stmt, -1))
	closed := len(blockClosePattern.FindAllStringIndex(stmt, -1))
	return opened > closed
}

// HasTransactionControl сообщает, что скрипт сам управляет транзакциями.
func HasTransactionControl(script string) bool {
	return txControlPattern.MatchString(script)
}

// HasForeignKeyPragma сообщает, что скрипт переключает проверку внешних ключей.
func HasForeignKeyPragma(script string) bool {
	return pragmaFKPattern.MatchString(script)
}

// IsTriggerDefinition сообщает, что скрипт содержит CREATE TRIGGER.
func IsTriggerDefinition(script string) bool {
	for _, stmt := range strings.Split(script, ";") {
		if triggerPattern.MatchString(stmt) {
			return true
		}
	}
	return false
}
