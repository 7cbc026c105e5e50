package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ioc-platform/ioc/internal/model"
)

// ListHypervisors returns all hypervisors ordered by name.
func (s *Store) ListHypervisors() ([]model.Hypervisor, error) {
	rows, err := s.db.Query(`
		SELECT id, name, host, platform, version, cpu_cores, cpu_usage_pct,
		       memory_total_mb, memory_used_mb, storage_total_gb, storage_used_gb,
		       vm_count, status, last_seen
		FROM vman_hypervisors ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying hypervisors: %w", err)
	}
	defer rows.Close()

	var out []model.Hypervisor
	for rows.Next() {
		var h model.Hypervisor
		if err := rows.Scan(&h.ID, &h.Name, &h.Host, &h.Platform, &h.Version,
			&h.CPUCores, &h.CPUUsagePct, &h.MemoryTotalMB, &h.MemoryUsedMB,
			&h.StorageTotalGB, &h.StorageUsedGB, &h.VMCount, &h.Status, &h.LastSeen); err != nil {
			return nil, fmt.Errorf("scanning hypervisor: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// ListVMs returns all virtual machines ordered by name.
func (s *Store) ListVMs() ([]model.VirtualMachine, error) {
	rows, err := s.db.Query(`
		SELECT id, uuid, name, hypervisor_id, guest_os, vcpus, memory_mb, disk_gb,
		       cpu_usage_pct, memory_usage_pct, power_state, health, ip_address,
		       tags, created_at
		FROM vman_virtual_machines ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying virtual machines: %w", err)
	}
	defer rows.Close()

	var out []model.VirtualMachine
	for rows.Next() {
		var (
			vm   model.VirtualMachine
			hvID sql.NullInt64
			tags sql.NullString
		)
		if err := rows.Scan(&vm.ID, &vm.UUID, &vm.Name, &hvID, &vm.GuestOS,
			&vm.VCPUs, &vm.MemoryMB, &vm.DiskGB, &vm.CPUUsagePct, &vm.MemoryUsagePct,
			&vm.PowerState, &vm.Health, &vm.IPAddress, &tags, &vm.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning virtual machine: %w", err)
		}
		vm.HypervisorID = ptrInt64(hvID)
		if tags.Valid && tags.String != "" {
			if err := json.Unmarshal([]byte(tags.String), &vm.Tags); err != nil {
				return nil, fmt.Errorf("decoding tags for vm %s: %w", vm.Name, err)
			}
		}
		out = append(out, vm)
	}
	return out, rows.Err()
}

// ListCloudInstances returns all cloud instances ordered by provider and name.
func (s *Store) ListCloudInstances() ([]model.CloudInstance, error) {
	rows, err := s.db.Query(`
		SELECT id, uuid, provider, instance_id, name, region, instance_type, state,
		       monthly_cost, cpu_usage_pct, launched_at
		FROM vman_cloud_instances ORDER BY provider, name`)
	if err != nil {
		return nil, fmt.Errorf("querying cloud instances: %w", err)
	}
	defer rows.Close()

	var out []model.CloudInstance
	for rows.Next() {
		var c model.CloudInstance
		if err := rows.Scan(&c.ID, &c.UUID, &c.Provider, &c.InstanceID, &c.Name,
			&c.Region, &c.InstanceType, &c.State, &c.MonthlyCost, &c.CPUUsagePct,
			&c.LaunchedAt); err != nil {
			return nil, fmt.Errorf("scanning cloud instance: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListRecommendations returns recommendations, highest savings first.
func (s *Store) ListRecommendations() ([]model.Recommendation, error) {
	rows, err := s.db.Query(`
		SELECT id, target_type, target_name, category, title, detail,
		       estimated_savings, severity, status
		FROM vman_recommendations ORDER BY estimated_savings DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("querying recommendations: %w", err)
	}
	defer rows.Close()

	var out []model.Recommendation
	for rows.Next() {
		var r model.Recommendation
		if err := rows.Scan(&r.ID, &r.TargetType, &r.TargetName, &r.Category,
			&r.Title, &r.Detail, &r.EstimatedSavings, &r.Severity, &r.Status); err != nil {
			return nil, fmt.Errorf("scanning recommendation: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListSnapshots returns all VM snapshots, newest first, with the VM name.
func (s *Store) ListSnapshots() ([]model.Snapshot, error) {
	rows, err := s.db.Query(`
		SELECT sn.id, sn.vm_id, vm.name, sn.name, sn.size_gb, sn.created_at, sn.description
		FROM vman_snapshots sn
		JOIN vman_virtual_machines vm ON vm.id = sn.vm_id
		ORDER BY sn.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying snapshots: %w", err)
	}
	defer rows.Close()

	var out []model.Snapshot
	for rows.Next() {
		var sn model.Snapshot
		if err := rows.Scan(&sn.ID, &sn.VMID, &sn.VMName, &sn.Name, &sn.SizeGB,
			&sn.CreatedAt, &sn.Description); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		out = append(out, sn)
	}
	return out, rows.Err()
}

// ListDatastores returns all datastores ordered by hypervisor and name.
func (s *Store) ListDatastores() ([]model.Datastore, error) {
	rows, err := s.db.Query(`
		SELECT id, hypervisor_id, name, type, capacity_gb, used_gb
		FROM vman_datastores ORDER BY hypervisor_id, name`)
	if err != nil {
		return nil, fmt.Errorf("querying datastores: %w", err)
	}
	defer rows.Close()

	var out []model.Datastore
	for rows.Next() {
		var d model.Datastore
		if err := rows.Scan(&d.ID, &d.HypervisorID, &d.Name, &d.Type, &d.CapacityGB, &d.UsedGB); err != nil {
			return nil, fmt.Errorf("scanning datastore: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DeleteHypervisor removes a hypervisor. Its VMs keep existing with a NULL
// hypervisor_id and its datastores are deleted.
func (s *Store) DeleteHypervisor(id int64) error {
	res, err := s.db.Exec(`DELETE FROM vman_hypervisors WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting hypervisor %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("hypervisor %d: %w", id, ErrNotFound)
	}
	return nil
}
