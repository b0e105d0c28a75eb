// Package plan provides the canonical domain types for planning notes.
//
// A plan is one markdown document per period. Periods are grouped into four
// categories (Day, Week, Month, Year) and each document is addressed by a
// digit-encoded date token:
//
//	Day/20251019.md    YYYYMMDD
//	Week/20251019.md   YYYYMMDD, must be the Sunday that starts the week
//	Month/202510.md    YYYYMM
//	Year/2025.md       YYYY
package plan
