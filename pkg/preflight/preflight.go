// Package preflight runs the checks a task performs before it starts
// replicating: the source is at least the minimum supported engine
// version, and -- when a replica DSN is configured for safe DDL
// cutover -- the operating user actually holds replication privileges
// on it. Renamed from the teacher's pkg/check (a version check plus a
// replica-privilege check ahead of an online schema change) to free
// pkg/check for the row/table comparison engine (section 4.8/4.9).
package preflight

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/siddontang/loggers"

	"github.com/replibridge/replibridge/pkg/dbconn"
	"github.com/replibridge/replibridge/pkg/errs"
)

// Resources names what a preflight check needs: the source
// connection parameters, the schema and DDL a task is about to
// apply, and (when configured) a replica connection the check verifies
// privileges against before a lock-requiring cutover.
type Resources struct {
	Host     string
	Username string
	Password string
	Schema   string
	DDLQuery string
	Replica  *sql.DB
}

func (r Resources) dsn() string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s", r.Username, r.Password, r.Host, r.Schema)
}

// Run executes every applicable check and returns the first failure.
func Run(ctx context.Context, r Resources, logger loggers.Advanced) error {
	if err := versionCheck(ctx, r, logger); err != nil {
		return err
	}
	return replicaPrivilegeCheck(ctx, r, logger)
}

// versionCheck requires the source to be MySQL 8.0+: the replication
// engine depends on instant DDL and invisible-column support that
// only 8.0 guarantees.
func versionCheck(ctx context.Context, r Resources, logger loggers.Advanced) error {
	db, err := dbconn.New(r.dsn(), dbconn.NewDBConfig())
	if err != nil {
		return errs.New(errs.Connection, "preflight.versionCheck", err)
	}
	defer db.Close()
	if !isMySQL8(db) {
		return errs.Newf(errs.Config, "preflight.versionCheck", "source %s requires MySQL 8.0 or later", r.Host)
	}
	if logger != nil {
		logger.Infof("preflight: source %s version check passed", r.Host)
	}
	return nil
}

func isMySQL8(db *sql.DB) bool {
	var version string
	if err := db.QueryRow("SELECT VERSION()").Scan(&version); err != nil {
		return false
	}
	return strings.HasPrefix(version, "8.")
}

// replicaPrivilegeCheck is a no-op when no replica is configured (not
// every task needs one): a locking cutover only runs against a
// replica when the task config names one. When a replica is present,
// the operating user must hold REPLICATION SLAVE (to read its
// position) and either SUPER or REPLICATION_SLAVE_ADMIN (to pause
// and resume it around the cutover).
func replicaPrivilegeCheck(ctx context.Context, r Resources, logger loggers.Advanced) error {
	if r.Replica == nil {
		return nil
	}
	grants, err := fetchGrants(ctx, r.Replica)
	if err != nil {
		return errs.New(errs.Connection, "preflight.replicaPrivilegeCheck", err)
	}
	if !hasPrivilege(grants, "REPLICATION SLAVE") {
		return errs.Newf(errs.Config, "preflight.replicaPrivilegeCheck", "replica user lacks REPLICATION SLAVE privilege")
	}
	if !hasPrivilege(grants, "SUPER") && !hasPrivilege(grants, "REPLICATION_SLAVE_ADMIN") && !hasPrivilege(grants, "ALL PRIVILEGES") {
		return errs.Newf(errs.Config, "preflight.replicaPrivilegeCheck", "replica user lacks SUPER or REPLICATION_SLAVE_ADMIN privilege")
	}
	if logger != nil {
		logger.Infof("preflight: replica privilege check passed")
	}
	return nil
}

func fetchGrants(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SHOW GRANTS")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var grants []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

func hasPrivilege(grants []string, priv string) bool {
	for _, g := range grants {
		if strings.Contains(strings.ToUpper(g), priv) {
			return true
		}
	}
	return false
}
