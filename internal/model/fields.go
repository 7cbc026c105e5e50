package model

// Field methods expose the JSON-named columns of the domain types to the
// dashboard filter expressions.

// Field returns the named column value.
func (h Hypervisor) Field(name string) (any, bool) {
	switch name {
	case "id":
		return h.ID, true
	case "name":
		return h.Name, true
	case "host":
		return h.Host, true
	case "platform":
		return h.Platform, true
	case "version":
		return h.Version, true
	case "cpu_cores":
		return h.CPUCores, true
	case "cpu_usage_pct":
		return h.CPUUsagePct, true
	case "memory_usage_pct":
		return h.MemoryPct(), true
	case "memory_total_mb":
		return h.MemoryTotalMB, true
	case "memory_used_mb":
		return h.MemoryUsedMB, true
	case "storage_total_gb":
		return h.StorageTotalGB, true
	case "storage_used_gb":
		return h.StorageUsedGB, true
	case "vm_count":
		return h.VMCount, true
	case "status":
		return h.Status, true
	case "last_seen":
		return h.LastSeen, true
	}
	return nil, false
}

// Field returns the named column value. Tags are addressable as "tags.<key>".
func (v VirtualMachine) Field(name string) (any, bool) {
	switch name {
	case "id":
		return v.ID, true
	case "uuid":
		return v.UUID, true
	case "name":
		return v.Name, true
	case "hypervisor_id":
		if v.HypervisorID == nil {
			return nil, false
		}
		return *v.HypervisorID, true
	case "guest_os":
		return v.GuestOS, true
	case "vcpus":
		return v.VCPUs, true
	case "memory_mb":
		return v.MemoryMB, true
	case "disk_gb":
		return v.DiskGB, true
	case "cpu_usage_pct":
		return v.CPUUsagePct, true
	case "memory_usage_pct":
		return v.MemoryUsagePct, true
	case "power_state":
		return v.PowerState, true
	case "health":
		return v.Health, true
	case "ip_address":
		return v.IPAddress, true
	case "created_at":
		return v.CreatedAt, true
	}
	if len(name) > 5 && name[:5] == "tags." {
		t, ok := v.Tags[name[5:]]
		return t, ok
	}
	return nil, false
}

// Field returns the named column value.
func (c CloudInstance) Field(name string) (any, bool) {
	switch name {
	case "id":
		return c.ID, true
	case "uuid":
		return c.UUID, true
	case "provider":
		return c.Provider, true
	case "instance_id":
		return c.InstanceID, true
	case "name":
		return c.Name, true
	case "region":
		return c.Region, true
	case "instance_type":
		return c.InstanceType, true
	case "state":
		return c.State, true
	case "monthly_cost":
		return c.MonthlyCost, true
	case "cpu_usage_pct":
		return c.CPUUsagePct, true
	case "launched_at":
		return c.LaunchedAt, true
	}
	return nil, false
}

// Field returns the named column value.
func (r Recommendation) Field(name string) (any, bool) {
	switch name {
	case "id":
		return r.ID, true
	case "target_type":
		return r.TargetType, true
	case "target_name":
		return r.TargetName, true
	case "category":
		return r.Category, true
	case "title":
		return r.Title, true
	case "estimated_savings":
		return r.EstimatedSavings, true
	case "severity":
		return r.Severity, true
	case "status":
		return r.Status, true
	}
	return nil, false
}

// Field returns the named column value. A site without TLS has no
// ssl_expiry_date.
func (w Website) Field(name string) (any, bool) {
	switch name {
	case "id":
		return w.ID, true
	case "name":
		return w.Name, true
	case "url":
		return w.URL, true
	case "check_interval_secs":
		return w.CheckIntervalSecs, true
	case "last_status":
		return w.LastStatus, true
	case "last_response_ms":
		return w.LastResponseMS, true
	case "last_checked":
		return w.LastChecked, true
	case "ssl_expiry_date":
		if w.SSLExpiryDate == nil {
			return nil, false
		}
		return *w.SSLExpiryDate, true
	case "ssl_issuer":
		return w.SSLIssuer, true
	case "enabled":
		return w.Enabled, true
	}
	return nil, false
}

// Field returns the named column value. "open" is true until the alert is
// resolved.
func (a WebsiteAlert) Field(name string) (any, bool) {
	switch name {
	case "id":
		return a.ID, true
	case "website_id":
		return a.WebsiteID, true
	case "alert_type":
		return a.AlertType, true
	case "severity":
		return a.Severity, true
	case "created_at":
		return a.CreatedAt, true
	case "open":
		return a.ResolvedAt == nil, true
	}
	return nil, false
}

// Field returns the named column value.
func (s Server) Field(name string) (any, bool) {
	switch name {
	case "id":
		return s.ID, true
	case "hostname":
		return s.Hostname, true
	case "ip_address":
		return s.IPAddress, true
	case "os_name":
		return s.OSName, true
	case "os_version":
		return s.OSVersion, true
	case "platform":
		return s.Platform, true
	case "environment":
		return s.Environment, true
	case "compliance_status":
		return s.ComplianceStatus, true
	case "drift_count":
		return s.DriftCount, true
	case "last_scan":
		return s.LastScan, true
	}
	return nil, false
}

// Field returns the named column value.
func (c Certificate) Field(name string) (any, bool) {
	switch name {
	case "id":
		return c.ID, true
	case "server_id":
		return c.ServerID, true
	case "subject":
		return c.Subject, true
	case "issuer":
		return c.Issuer, true
	case "serial":
		return c.Serial, true
	case "not_before":
		return c.NotBefore, true
	case "not_after":
		return c.NotAfter, true
	case "key_algorithm":
		return c.KeyAlgorithm, true
	}
	return nil, false
}
