package team

import (
	"os"
	"regexp"
	"strings"
	"testing"
)

// schemaColumns parses the CREATE TABLE block for the given table out of the
// initial migration and returns the declared column names.
func schemaColumns(t *testing.T, table string) map[string]bool {
	t.Helper()

	ddl, err := os.ReadFile("../../migrations/000001_init.up.sql")
	if err != nil {
		t.Fatal(err)
	}

	block := regexp.MustCompile(`(?s)CREATE TABLE ` + table + ` \((.*?)\n\);`).
		FindSubmatch(ddl)
	if block == nil {
		t.Fatalf("CREATE TABLE %s not found in migration", table)
	}

	cols := map[string]bool{}
	for _, line := range strings.Split(string(block[1]), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "PRIMARY", "UNIQUE", "CHECK", "CONSTRAINT", "FOREIGN":
			continue
		}
		cols[strings.TrimSuffix(fields[0], ",")] = true
	}
	return cols
}

// sqlIdentifiers pulls the lowercase identifiers out of a SQL fragment,
// ignoring keywords and function names that are not column references.
func sqlIdentifiers(fragment string) []string {
	skip := map[string]bool{
		"coalesce": true, "nullif": true, "now": true,
		"insert": true, "into": true, "values": true, "on": true,
		"conflict": true, "do": true, "update": true, "set": true,
	}
	var ids []string
	for _, m := range regexp.MustCompile(`[a-z_]+`).FindAllString(fragment, -1) {
		if !skip[m] {
			ids = append(ids, m)
		}
	}
	return ids
}

// Every column the team queries select must exist in the shipped schema. A
// drifted name surfaces as SQLSTATE 42703 on the very first team create, so
// this is checked statically here.
func TestTeamColumnsDeclaredInSchema(t *testing.T) {
	declared := schemaColumns(t, "teams")
	for _, col := range sqlIdentifiers(teamColumns) {
		if !declared[col] {
			t.Errorf("team queries select column %q, but CREATE TABLE teams does not declare it", col)
		}
	}
}

func TestMembershipColumnsDeclaredInSchema(t *testing.T) {
	declared := schemaColumns(t, "team_members")
	for _, stmt := range []string{joinMembershipUpsert, ownerMembershipInsert} {
		head, _, _ := strings.Cut(stmt, "VALUES")
		for _, col := range sqlIdentifiers(head) {
			if col == "team_members" {
				continue
			}
			if !declared[col] {
				t.Errorf("membership statement references column %q, but CREATE TABLE team_members does not declare it", col)
			}
		}
	}
}

// A re-join must reactivate the row without rewriting role: a removed admin
// whose row still says admin comes back as admin, and the conflict arm must
// never reset an owner row to member.
func TestJoinUpsertLeavesRoleAlone(t *testing.T) {
	_, update, ok := strings.Cut(joinMembershipUpsert, "DO UPDATE SET")
	if !ok {
		t.Fatal("join upsert has no DO UPDATE arm; rejoining after removal would fail on the primary key")
	}
	if !strings.Contains(update, "status = 'active'") {
		t.Error("join upsert conflict arm does not reactivate the membership")
	}
	if strings.Contains(update, "role") {
		t.Errorf("join upsert conflict arm touches role: %q", update)
	}
	if !strings.Contains(joinMembershipUpsert, "'member'") {
		t.Error("fresh join should insert with the member role")
	}
}

func TestOwnerMembershipInsertRole(t *testing.T) {
	if !strings.Contains(ownerMembershipInsert, "'owner'") {
		t.Error("team creation must insert the creator as owner")
	}
	if !strings.Contains(ownerMembershipInsert, "'active'") {
		t.Error("owner membership must start active")
	}
}
