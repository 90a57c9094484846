// Package mysql provides the MySQL-backed registry store. It encapsulates
// schema migrations, connection pooling, and the transactional commit path
// for verification results, submitter statistics, and global counters.
package mysql
