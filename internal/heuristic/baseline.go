package heuristic

func idColumn() Column {
	return Column{Name: "id", Type: "INTEGER", PrimaryKey: true}
}

func col(name, typ string) Column {
	return Column{Name: name, Type: typ}
}

func (c Column) required() Column {
	c.NotNull = true
	return c
}

func (c Column) unique() Column {
	c.Unique = true
	return c
}

func (c Column) def(literal string) Column {
	c.Default = literal
	return c
}

func timestamps(t *Table) *Table {
	return t.
		Add(col("created_at", "TIMESTAMP").def("CURRENT_TIMESTAMP")).
		Add(col("updated_at", "TIMESTAMP").def("CURRENT_TIMESTAMP"))
}

// Baseline возвращает базовую модель основных таблиц в порядке зависимостей.
// Выведенные из кода колонки добавляются к ней, но не заменяют её.
func Baseline() []*Table {
	systemConfig := NewTable("system_config").
		Add(idColumn()).
		Add(col("config_key", "TEXT").required().unique()).
		Add(col("config_value", "TEXT")).
		Add(col("description", "TEXT")).
		Add(col("updated_at", "TIMESTAMP").def("CURRENT_TIMESTAMP"))

	cities := timestamps(NewTable("cities").
		Add(idColumn()).
		Add(col("name", "VARCHAR(100)").required().unique()).
		Add(col("code", "VARCHAR(10)").def("''")).
		Add(col("display_order", "INTEGER").def("0")).
		Add(col("is_active", "BOOLEAN").def("TRUE"))).
		Index(false, "display_order").
		Index(false, "is_active")

	districts := timestamps(NewTable("districts").
		Add(idColumn()).
		Add(col("city_id", "INTEGER").required()).
		Add(col("name", "VARCHAR(100)").required()).
		Add(col("code", "VARCHAR(10)").def("''")).
		Add(col("display_order", "INTEGER").def("0")).
		Add(col("is_active", "BOOLEAN").def("TRUE"))).
		References("FOREIGN KEY (city_id) REFERENCES cities(id) ON DELETE CASCADE").
		Index(false, "city_id").
		Index(false, "name")

	merchants := NewTable("merchants").
		Add(idColumn()).
		Add(col("chat_id", "INTEGER").required().unique()).
		Add(col("name", "VARCHAR(255)").required()).
		Add(col("region", "VARCHAR(100)")).
		Add(col("category", "VARCHAR(100)")).
		Add(col("contact_info", "TEXT")).
		Add(col("profile_data", "TEXT")).
		Add(col("status", "VARCHAR(20)").def("'pending'")).
		Add(col("binding_code", "VARCHAR(20)")).
		Add(col("created_at", "TIMESTAMP").def("CURRENT_TIMESTAMP")).
		Add(col("updated_at", "TIMESTAMP").def("CURRENT_TIMESTAMP")).
		Add(col("merchant_type", "TEXT").def("'teacher'")).
		Add(col("city_id", "INTEGER")).
		Add(col("district_id", "INTEGER")).
		Add(col("p_price", "INTEGER")).
		Add(col("pp_price", "INTEGER")).
		Add(col("custom_description", "TEXT")).
		Add(col("user_info", "TEXT")).
		Add(col("channel_link", "TEXT")).
		Add(col("adv_sentence", "TEXT")).
		Index(false, "status").
		Index(false, "binding_code").
		Index(false, "city_id").
		Index(false, "district_id").
		Index(false, "merchant_type")

	orders := timestamps(NewTable("orders").
		Add(idColumn()).
		Add(col("merchant_id", "INTEGER").required()).
		Add(col("user_id", "INTEGER").required()).
		Add(col("chat_id", "INTEGER").required()).
		Add(col("order_type", "VARCHAR(50)")).
		Add(col("order_data", "TEXT")).
		Add(col("price", "INTEGER")).
		Add(col("status", "VARCHAR(20)").def("'pending'"))).
		References("FOREIGN KEY (merchant_id) REFERENCES merchants(id)").
		Index(false, "merchant_id").
		Index(false, "user_id").
		Index(false, "status").
		Index(false, "order_type")

	bindingCodes := NewTable("binding_codes").
		Add(idColumn()).
		Add(col("code", "VARCHAR(20)").required().unique()).
		Add(col("merchant_id", "INTEGER")).
		Add(col("is_used", "BOOLEAN").def("FALSE")).
		Add(col("used_by_user_id", "INTEGER")).
		Add(col("expires_at", "TIMESTAMP")).
		Add(col("created_at", "TIMESTAMP").def("CURRENT_TIMESTAMP")).
		Add(col("used_at", "TIMESTAMP")).
		Index(false, "is_used").
		Index(false, "expires_at")

	activityLogs := NewTable("activity_logs").
		Add(idColumn()).
		Add(col("user_id", "INTEGER").required()).
		Add(col("action_type", "VARCHAR(50)").required()).
		Add(col("details", "TEXT")).
		Add(col("timestamp", "TIMESTAMP").def("CURRENT_TIMESTAMP")).
		Add(col("merchant_id", "INTEGER")).
		Add(col("button_id", "INTEGER")).
		Index(false, "user_id").
		Index(false, "action_type").
		Index(false, "timestamp").
		Index(false, "merchant_id")

	fsmStates := timestamps(NewTable("fsm_states").
		Add(idColumn()).
		Add(col("user_id", "INTEGER").required().unique()).
		Add(col("state", "VARCHAR(100)")).
		Add(col("data", "TEXT")))

	buttonConfigs := timestamps(NewTable("button_configs").
		Add(idColumn()).
		Add(col("button_type", "VARCHAR(50)").required()).
		Add(col("config_data", "TEXT")))

	triggers := timestamps(NewTable("auto_reply_triggers").
		Add(idColumn()).
		Add(col("admin_id", "INTEGER").required()).
		Add(col("trigger_text", "TEXT").required()).
		Add(col("match_type", "VARCHAR(20)").def("'contains'")).
		Add(col("created_by", "INTEGER").required()).
		Add(col("priority_order", "INTEGER").def("0")).
		Add(col("is_active", "BOOLEAN").def("TRUE")).
		Add(col("trigger_count", "INTEGER").def("0")).
		Add(col("last_triggered_at", "TIMESTAMP"))).
		Index(false, "admin_id").
		Index(false, "is_active").
		Index(false, "priority_order").
		Index(false, "created_by")

	messages := timestamps(NewTable("auto_reply_messages").
		Add(idColumn()).
		Add(col("trigger_id", "INTEGER").required()).
		Add(col("message_content", "TEXT").required()).
		Add(col("display_order", "INTEGER").def("0")).
		Add(col("is_active", "BOOLEAN").def("TRUE")).
		Add(col("send_count", "INTEGER").def("0")).
		Add(col("last_sent_at", "TIMESTAMP"))).
		References("FOREIGN KEY (trigger_id) REFERENCES auto_reply_triggers(id) ON DELETE CASCADE").
		Index(false, "trigger_id").
		Index(false, "display_order").
		Index(false, "is_active")

	dailyStats := NewTable("auto_reply_daily_stats").
		Add(idColumn()).
		Add(col("trigger_id", "INTEGER").required()).
		Add(col("stat_date", "DATE").required()).
		Add(col("trigger_count", "INTEGER").def("0")).
		Add(col("unique_users_count", "INTEGER").def("0")).
		Add(col("total_messages_sent", "INTEGER").def("0")).
		References("FOREIGN KEY (trigger_id) REFERENCES auto_reply_triggers(id) ON DELETE CASCADE").
		Index(true, "trigger_id", "stat_date")

	keywords := timestamps(NewTable("keywords").
		Add(idColumn()).
		Add(col("name", "VARCHAR(255)").required().unique()).
		Add(col("display_order", "INTEGER").def("0")).
		Add(col("is_active", "BOOLEAN").def("TRUE"))).
		Index(false, "display_order").
		Index(false, "is_active")

	merchantKeywords := NewTable("merchant_keywords").
		Add(idColumn()).
		Add(col("merchant_id", "INTEGER").required()).
		Add(col("keyword_id", "INTEGER").required()).
		Add(col("created_at", "TIMESTAMP").def("CURRENT_TIMESTAMP")).
		References("FOREIGN KEY (merchant_id) REFERENCES merchants(id) ON DELETE CASCADE").
		References("FOREIGN KEY (keyword_id) REFERENCES keywords(id) ON DELETE CASCADE").
		Index(false, "keyword_id").
		Index(true, "merchant_id", "keyword_id")

	timeSlots := timestamps(NewTable("posting_time_slots").
		Add(idColumn()).
		Add(col("time_str", "TEXT").required()).
		Add(col("is_active", "BOOLEAN").def("1")).
		Add(col("display_order", "INTEGER").def("0")))

	channels := timestamps(NewTable("posting_channels").
		Add(idColumn()).
		Add(col("display_name", "TEXT")).
		Add(col("channel_chat_id", "TEXT")).
		Add(col("channel_link", "TEXT")).
		Add(col("is_active", "BOOLEAN").def("1")))

	return []*Table{
		systemConfig, cities, districts, merchants, orders, bindingCodes,
		activityLogs, fsmStates, buttonConfigs, triggers, messages, dailyStats,
		keywords, merchantKeywords, timeSlots, channels,
	}
}
