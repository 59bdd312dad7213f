package repo

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"github.com/MikroWizard/mikroman/internal/models"
)

// GlobalGroupID is the implicit device group every device belongs to.
const GlobalGroupID = 1

// PermRepo resolves permission assignments for the enforcement path.
type PermRepo struct {
	db *sql.DB
}

func NewPermRepo(db *sql.DB) *PermRepo {
	return &PermRepo{db: db}
}

// DeviceGroupIDs returns the device's group memberships plus the global
// group, the set a user's assignment is resolved against.
func (r *PermRepo) DeviceGroupIDs(ctx context.Context, deviceID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT group_id FROM device_groups_devices_rel WHERE device_id=$1`, deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return append(ids, GlobalGroupID), nil
}

// AssignmentsByUserAndGroups returns the user's permission assignments
// inside any of the given device groups, joined with the permission group
// definition. Empty result means the user has no access on this device.
func (r *PermRepo) AssignmentsByUserAndGroups(ctx context.Context, userID int64, groupIDs []int64) ([]models.PermAssignment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT rel.id, rel.user_id, rel.group_id, p.id, p.name, p.perms, p.created
		 FROM user_group_perm_rel rel
		 JOIN permissions p ON p.id = rel.perm_id
		 WHERE rel.user_id = $1 AND rel.group_id = ANY($2)`,
		userID, pq.Array(groupIDs),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assignments []models.PermAssignment
	for rows.Next() {
		var a models.PermAssignment
		if err := rows.Scan(&a.ID, &a.UserID, &a.GroupID,
			&a.Perm.ID, &a.Perm.Name, &a.Perm.Perms, &a.Perm.Created); err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}
