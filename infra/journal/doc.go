// Package journal provides the stores of the command journal: a JSONL file,
// a rotating JSONL file and a SQLite table.
package journal
