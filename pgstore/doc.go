// Package pgstore implements authcore's UserStore and RefreshTokenStore on
// PostgreSQL via pgx. It owns no schema migrations; Schema holds the DDL
// for deployments that bootstrap with it.
package pgstore
