package observability

import (
	"bytes"
	"fmt"
	"sort"
)

// TaskCounts maps a service name to the number of ledger tasks per status.
type TaskCounts map[string]map[string]int

// PrometheusExporter renders agent metrics in Prometheus text format.
type PrometheusExporter struct {
	version  string
	requests *RequestCounter
	tasks    func() TaskCounts
}

// NewPrometheusExporter constructs an exporter backed by the provided request counter.
func NewPrometheusExporter(version string, requests *RequestCounter) *PrometheusExporter {
	return &PrometheusExporter{version: version, requests: requests}
}

// WithTasks enables exporting the task ledger gauge.
func (e *PrometheusExporter) WithTasks(provider func() TaskCounts) {
	e.tasks = provider
}

// Export produces the metrics payload in Prometheus' text exposition format.
func (e *PrometheusExporter) Export() []byte {
	var buf bytes.Buffer

	e.writeBuildInfo(&buf)
	e.writeRequests(&buf)
	e.writeTasks(&buf)

	return buf.Bytes()
}

func (e *PrometheusExporter) writeBuildInfo(buf *bytes.Buffer) {
	buf.WriteString("# HELP boofi_build_info Build information of the running agent.\n")
	buf.WriteString("# TYPE boofi_build_info gauge\n")
	buf.WriteString(fmt.Sprintf("boofi_build_info{version=%q} 1\n", e.version))
}

func (e *PrometheusExporter) writeRequests(buf *bytes.Buffer) {
	if e.requests == nil {
		return
	}
	counts := e.requests.Snapshot()
	if len(counts) == 0 {
		return
	}

	buf.WriteString("# HELP boofi_http_requests_total Total number of HTTP requests per service and status code.\n")
	buf.WriteString("# TYPE boofi_http_requests_total counter\n")

	labels := make([]Labels, 0, len(counts))
	for l := range counts {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].Service != labels[j].Service {
			return labels[i].Service < labels[j].Service
		}
		return labels[i].Code < labels[j].Code
	})
	for _, l := range labels {
		buf.WriteString(fmt.Sprintf("boofi_http_requests_total{service=%q,code=\"%d\"} %d\n", l.Service, l.Code, counts[l]))
	}
}

func (e *PrometheusExporter) writeTasks(buf *bytes.Buffer) {
	if e.tasks == nil {
		return
	}
	counts := e.tasks()

	buf.WriteString("# HELP boofi_tasks Number of tasks in the ledger per service and status.\n")
	buf.WriteString("# TYPE boofi_tasks gauge\n")

	services := make([]string, 0, len(counts))
	for service := range counts {
		services = append(services, service)
	}
	sort.Strings(services)
	for _, service := range services {
		statuses := make([]string, 0, len(counts[service]))
		for status := range counts[service] {
			statuses = append(statuses, status)
		}
		sort.Strings(statuses)
		for _, status := range statuses {
			buf.WriteString(fmt.Sprintf("boofi_tasks{service=%q,status=%q} %d\n", service, status, counts[service][status]))
		}
	}
}
