// Package postgres is an authcache.UserProvider backed by PostgreSQL through
// the pgx database/sql driver. The schema ships as embedded goose migrations;
// call [Migrate] once at startup.
//
// password_changed_at is the column the password epoch is loaded from, so
// UpdatePasswordHash stamps it in the same statement that stores the hash.
package postgres
