package operation

import (
	"fmt"
	"strings"
)

// Kind identifies the type of long-running operation a job performs. The
// orchestrator never interprets a kind beyond selecting its stage profile.
type Kind string

const (
	// KindGitCommit commits pending changes to the local repository.
	KindGitCommit Kind = "git-commit"
	// KindGitPush pushes local commits to the remote.
	KindGitPush Kind = "git-push"
	// KindGitCommitAndPush commits and pushes in one operation.
	KindGitCommitAndPush Kind = "git-commit-and-push"
	// KindGitForceReset hard resets the working tree to a branch or commit.
	KindGitForceReset Kind = "git-force-reset"
	// KindSQLBackup runs the database backup batch script.
	KindSQLBackup Kind = "sql-backup"
	// KindSQLRestore restores a database from a backup file.
	KindSQLRestore Kind = "sql-restore"
	// KindSQLExport exports a database.
	KindSQLExport Kind = "sql-export"
)

// Family groups kinds by the backend subsystem that executes them.
type Family string

const (
	FamilyGit Family = "git"
	FamilySQL Family = "sql"
)

// Kinds returns every supported kind in a stable order.
func Kinds() []Kind {
	return []Kind{
		KindGitCommit,
		KindGitPush,
		KindGitCommitAndPush,
		KindGitForceReset,
		KindSQLBackup,
		KindSQLRestore,
		KindSQLExport,
	}
}

func (k Kind) String() string { return string(k) }

// Family returns the subsystem family of the kind.
func (k Kind) Family() Family {
	if strings.HasPrefix(string(k), "sql-") {
		return FamilySQL
	}
	return FamilyGit
}

// Valid reports whether k is one of the supported kinds.
func (k Kind) Valid() bool {
	for _, known := range Kinds() {
		if k == known {
			return true
		}
	}
	return false
}

// ParseKind converts a string to a Kind. Matching is case-insensitive and
// accepts underscores in place of dashes.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-"))
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}
