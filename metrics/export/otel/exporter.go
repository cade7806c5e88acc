package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	goAuthClient "github.com/MrEthical07/goAuthClient"
	"github.com/MrEthical07/goAuthClient/metrics/export/internaldefs"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() goAuthClient.MetricsSnapshot
	AuditDropped() uint64
}

// reading is one collection pass: the snapshot plus the audit drop count.
type reading struct {
	snapshot goAuthClient.MetricsSnapshot
	dropped  uint64
}

// observeFunc reports one instrument from a reading.
type observeFunc func(metric.Observer, reading)

// OTelExporter publishes client metrics through OTel observable
// instruments. Values are read from the source on every collection.
//
// Counters from the client metric table become Int64ObservableCounters.
// The refresh latency histogram becomes a "<name>_bucket" gauge carrying a
// cumulative count per "le" attribute and a "<name>_count" counter; both
// are skipped while the source records no latency.
type OTelExporter struct {
	registration metric.Registration
}

// NewOTelExporter registers instruments on meter that observe m.
func NewOTelExporter(meter metric.Meter, m *goAuthClient.Manager) (*OTelExporter, error) {
	if m == nil {
		return nil, ErrNilSource
	}
	return NewOTelExporterFromSource(meter, m)
}

// NewOTelExporterFromSource registers instruments observing any snapshot
// source.
func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	var (
		observables []metric.Observable
		observers   []observeFunc
	)

	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help), metric.WithUnit("{event}"))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", def.Name, err)
		}
		id := def.ID
		observables = append(observables, ins)
		observers = append(observers, func(o metric.Observer, r reading) {
			o.ObserveInt64(ins, int64(r.snapshot.Counters[id]))
		})
	}

	for _, def := range internaldefs.HistogramDefs {
		observe, ins, err := histogramObserver(meter, def)
		if err != nil {
			return nil, err
		}
		observables = append(observables, ins...)
		observers = append(observers, observe)
	}

	dropped, err := meter.Int64ObservableCounter(internaldefs.AuditDroppedName,
		metric.WithDescription(internaldefs.AuditDroppedHelp), metric.WithUnit("{event}"))
	if err != nil {
		return nil, fmt.Errorf("create counter %s: %w", internaldefs.AuditDroppedName, err)
	}
	observables = append(observables, dropped)
	observers = append(observers, func(o metric.Observer, r reading) {
		o.ObserveInt64(dropped, int64(r.dropped))
	})

	registration, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		r := reading{snapshot: source.MetricsSnapshot(), dropped: source.AuditDropped()}
		for _, observe := range observers {
			observe(o, r)
		}
		return nil
	}, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return &OTelExporter{registration: registration}, nil
}

func histogramObserver(meter metric.Meter, def internaldefs.HistogramDef) (observeFunc, []metric.Observable, error) {
	buckets, err := meter.Int64ObservableGauge(def.Name+"_bucket",
		metric.WithDescription(def.Help+" Cumulative count per upper bound."), metric.WithUnit("{sample}"))
	if err != nil {
		return nil, nil, fmt.Errorf("create gauge %s_bucket: %w", def.Name, err)
	}
	count, err := meter.Int64ObservableCounter(def.Name+"_count",
		metric.WithDescription(def.Help+" Total samples."), metric.WithUnit("{sample}"))
	if err != nil {
		return nil, nil, fmt.Errorf("create counter %s_count: %w", def.Name, err)
	}

	bounds := make([]metric.ObserveOption, len(internaldefs.HistogramBounds))
	for i, le := range internaldefs.HistogramBounds {
		bounds[i] = metric.WithAttributeSet(attribute.NewSet(attribute.String("le", le)))
	}

	id := def.ID
	observe := func(o metric.Observer, r reading) {
		raw, ok := r.snapshot.Histograms[id]
		if !ok {
			return
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		for i, opt := range bounds {
			o.ObserveInt64(buckets, int64(cumulative[i]), opt)
		}
		o.ObserveInt64(count, int64(cumulative[len(cumulative)-1]))
	}
	return observe, []metric.Observable{buckets, count}, nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
