// Package pgstore keeps sessions and refresh token chains in PostgreSQL
// through a pgx connection pool.
//
// [SessionRepository] implements session.Repository and [RefreshLedger]
// implements refresh.Ledger, so either can replace its Redis counterpart
// via authcore.Builder.WithSessionRepository and WithRefreshLedger.
// Redemption locks the token row with SELECT ... FOR UPDATE, which gives
// the same single-winner guarantee as the Redis WATCH transaction.
//
// Rows are not expired by the database. Call PurgeExpired periodically.
package pgstore
