package summary

import (
	"errors"
	"slices"

	"github.com/ioc-platform/ioc/internal/cache"
	"github.com/ioc-platform/ioc/internal/filter"
	"github.com/ioc-platform/ioc/internal/sample"
)

// ErrUnknownChart is returned by Chart for names it does not know.
var ErrUnknownChart = errors.New("unknown chart")

// Dataset is one Chart.js dataset.
type Dataset struct {
	Label string    `json:"label"`
	Data  []float64 `json:"data"`
}

// ChartData is the data half of a Chart.js configuration.
type ChartData struct {
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
}

// ChartNames lists the charts Chart can build.
func ChartNames() []string {
	return []string{
		"incidents-by-priority",
		"incidents-by-status",
		"server-utilisation",
		"hypervisor-load",
		"cloud-cost",
		"website-response",
		"compliance",
	}
}

// Chart builds the named chart from the static data and the cache snapshot.
func Chart(name string, d *sample.Data, snap cache.CacheSnapshot) (ChartData, error) {
	switch name {
	case "incidents-by-priority":
		return countBy(d.Incidents, "priority", []string{
			sample.PriorityCritical, sample.PriorityHigh, sample.PriorityMedium, sample.PriorityLow,
		}, "Incidents"), nil
	case "incidents-by-status":
		return countBy(d.Incidents, "status", []string{
			sample.StatusOpen, sample.StatusInProgress, sample.StatusResolved, sample.StatusClosed,
		}, "Incidents"), nil
	case "server-utilisation":
		cd := ChartData{Datasets: []Dataset{{Label: "CPU %"}, {Label: "Memory %"}, {Label: "Disk %"}}}
		for _, s := range d.Servers {
			cd.Labels = append(cd.Labels, s.Name)
			cd.Datasets[0].Data = append(cd.Datasets[0].Data, s.CPUPct)
			cd.Datasets[1].Data = append(cd.Datasets[1].Data, s.MemPct)
			cd.Datasets[2].Data = append(cd.Datasets[2].Data, s.DiskPct)
		}
		return cd, nil
	case "hypervisor-load":
		cd := ChartData{Datasets: []Dataset{{Label: "CPU %"}, {Label: "Memory %"}}}
		for _, h := range snap.HypervisorList() {
			cd.Labels = append(cd.Labels, h.Name)
			cd.Datasets[0].Data = append(cd.Datasets[0].Data, h.CPUUsagePct)
			cd.Datasets[1].Data = append(cd.Datasets[1].Data, round1(h.MemoryPct()))
		}
		return cd, nil
	case "cloud-cost":
		cloud := snap.CloudList()
		providers := []string{"aws", "azure", "gcp"}
		cd := ChartData{Labels: providers, Datasets: []Dataset{{Label: "Monthly cost"}}}
		for _, p := range providers {
			q := filter.MustParse("provider = '" + p + "'")
			cd.Datasets[0].Data = append(cd.Datasets[0].Data, round2(filter.Sum(cloud, q, "monthly_cost")))
		}
		return cd, nil
	case "website-response":
		cd := ChartData{Datasets: []Dataset{{Label: "Last response (ms)"}}}
		for _, w := range snap.WebsiteList() {
			cd.Labels = append(cd.Labels, w.Name)
			cd.Datasets[0].Data = append(cd.Datasets[0].Data, float64(w.LastResponseMS))
		}
		return cd, nil
	case "compliance":
		servers := snap.ServerList()
		cd := ChartData{
			Labels:   []string{"Compliant", "Non-compliant", "Unknown"},
			Datasets: []Dataset{{Label: "Servers"}},
		}
		unknown := filter.MustParse("compliance_status = 'unknown'")
		cd.Datasets[0].Data = []float64{
			float64(filter.Count(servers, ServersCompliant)),
			float64(filter.Count(servers, ServersNonCompliant)),
			float64(filter.Count(servers, unknown)),
		}
		return cd, nil
	}
	return ChartData{}, ErrUnknownChart
}

func countBy[T filter.Record](records []T, field string, values []string, label string) ChartData {
	cd := ChartData{Labels: slices.Clone(values), Datasets: []Dataset{{Label: label}}}
	for _, v := range values {
		q := filter.MustParse(field + " = '" + v + "'")
		cd.Datasets[0].Data = append(cd.Datasets[0].Data, float64(filter.Count(records, q)))
	}
	return cd
}
