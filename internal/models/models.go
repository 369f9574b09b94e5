package models

// MigrateModels lists every table in dependency order.
var MigrateModels = []any{
	&Township{},
	&Branch{},
	&User{},
	&AccessToken{},
	&AuditLog{},
}
