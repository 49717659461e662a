// Package querysql renders SQL for the two supported engines and builds
// parameterized statements.
//
// All values are bound as parameters, never interpolated. Identifiers that
// come from metadata (table names, FQN column names) are always double
// quoted with Quote.
package querysql
