// Copyright 2017 Kumina, https://kumina.nl/
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package scheduler drives the collection cycle: one cycle at a time, each
// starting one interval after the previous one started.
package scheduler

import (
	"context"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"k8s.io/utils/clock"

	"github.com/nanoandrew4/openstack_libvirt_exporter/internal/hypervisor"
)

// DomainCollector collects the statistics of one domain.
type DomainCollector interface {
	CollectAll(dom hypervisor.Domain) error
}

// Clock is the time source of the scheduler.
type Clock interface {
	clock.PassiveClock
	After(d time.Duration) <-chan time.Time
}

// Scheduler runs collection cycles against a libvirt URI.
type Scheduler struct {
	opener    hypervisor.Opener
	uri       string
	interval  time.Duration
	collector DomainCollector
	clock     Clock
	logger    log.Logger

	up       prometheus.Gauge
	running  prometheus.Gauge
	duration prometheus.Gauge
	cycles   prometheus.Counter
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// New returns a Scheduler. Its metrics are registered on reg.
func New(opener hypervisor.Opener, uri string, interval time.Duration, collector DomainCollector,
	reg prometheus.Registerer, logger log.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	factory := promauto.With(reg)
	s := &Scheduler{
		opener:    opener,
		uri:       uri,
		interval:  interval,
		collector: collector,
		clock:     clock.RealClock{},
		logger:    logger,
		up: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "libvirt",
			Name:      "up",
			Help:      "Whether the last attempt to open a libvirt session was successful.",
		}),
		running: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "libvirt",
			Name:      "running_domains",
			Help:      "Number of running domains found by the last enumeration.",
		}),
		duration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "libvirt",
			Subsystem: "scrape",
			Name:      "duration_seconds",
			Help:      "Duration of the last collection cycle, in seconds.",
		}),
		cycles: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "libvirt",
			Subsystem: "scrape",
			Name:      "cycles_total",
			Help:      "Number of completed collection cycles.",
		}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run executes cycles until ctx is done. Waits end as soon as ctx is done; a
// blocked libvirt call is not interrupted.
func (s *Scheduler) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		s.tick(ctx)
	}
	return nil
}

// tick runs one cycle and then waits out the rest of the interval, measured
// from the start of the cycle. A cycle longer than the interval is followed
// immediately by the next one.
func (s *Scheduler) tick(ctx context.Context) {
	start := s.clock.Now()
	s.cycle(ctx)
	elapsed := s.clock.Since(start)

	s.duration.Set(elapsed.Seconds())
	s.cycles.Inc()

	if wait := s.interval - elapsed; wait > 0 {
		s.wait(ctx, wait)
	}
}

// wait blocks for d or until ctx is done, reporting whether the full
// duration passed.
func (s *Scheduler) wait(ctx context.Context, d time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case <-ctx.Done():
		return false
	case <-s.clock.After(d):
		return true
	}
}

func (s *Scheduler) cycle(ctx context.Context) {
	_ = level.Debug(s.logger).Log("msg", "Collection cycle started", "ts", s.clock.Now())

	session := s.open(ctx)
	if session == nil {
		return
	}
	defer func() {
		if err := session.Close(); err != nil {
			_ = level.Warn(s.logger).Log("msg", "Failed to close libvirt session", "err", err)
		}
	}()

	for _, dom := range s.enumerate(ctx, session) {
		if err := s.collector.CollectAll(dom); err != nil {
			_ = level.Debug(s.logger).Log("msg", "Domain collected with errors", "domain", dom.Name(), "err", err)
		}
	}
	_ = level.Debug(s.logger).Log("msg", "Collection cycle finished", "ts", s.clock.Now())
}

// open retries every interval until a session is opened. It returns nil only
// when ctx is done.
func (s *Scheduler) open(ctx context.Context) hypervisor.Session {
	for {
		session, err := s.opener.Open(s.uri)
		if err == nil {
			s.up.Set(1)
			_ = level.Debug(s.logger).Log("msg", "Connected to libvirt", "uri", s.uri)
			return session
		}
		s.up.Set(0)
		_ = level.Error(s.logger).Log("msg", "Failed to open libvirt session", "uri", s.uri, "retry_in", s.interval, "err", err)
		if !s.wait(ctx, s.interval) {
			return nil
		}
	}
}

// enumerate lists the running domains, sleeping one interval between
// attempts while none are found. The session is kept across attempts.
func (s *Scheduler) enumerate(ctx context.Context, session hypervisor.Session) []hypervisor.Domain {
	for {
		domains := s.lookup(session)
		s.running.Set(float64(len(domains)))
		if len(domains) > 0 {
			return domains
		}
		_ = level.Info(s.logger).Log("msg", "No running domains", "uri", s.uri, "retry_in", s.interval)
		if !s.wait(ctx, s.interval) {
			return nil
		}
	}
}

func (s *Scheduler) lookup(session hypervisor.Session) []hypervisor.Domain {
	ids, err := session.ListRunningDomainIDs()
	if err != nil {
		_ = level.Error(s.logger).Log("msg", "Failed to list running domains", "err", err)
		return nil
	}
	domains := make([]hypervisor.Domain, 0, len(ids))
	for _, id := range ids {
		dom, err := session.LookupByID(id)
		if err != nil {
			_ = level.Warn(s.logger).Log("msg", "Failed to find domain", "id", id, "err", err)
			continue
		}
		domains = append(domains, dom)
	}
	return domains
}
