// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ble

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"tinygo.org/x/bluetooth"
)

// Advertisement is an LPF2 hub seen during discovery
type Advertisement struct {
	Address string
	Name    string
	RSSI    int16
}

// advertisementSet collects advertisements keyed by address, keeping the
// strongest signal seen for each hub
type advertisementSet struct {
	mu   sync.Mutex
	seen map[string]Advertisement
}

func newAdvertisementSet() *advertisementSet {
	return &advertisementSet{seen: make(map[string]Advertisement)}
}

// add records ad and reports whether the address is new
func (s *advertisementSet) add(ad Advertisement) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.seen[ad.Address]
	if ok {
		if ad.Name == "" {
			ad.Name = prev.Name
		}
		if prev.RSSI > ad.RSSI {
			ad.RSSI = prev.RSSI
		}
	}
	s.seen[ad.Address] = ad
	return !ok
}

// list returns the advertisements ordered by signal strength
func (s *advertisementSet) list() []Advertisement {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Advertisement, 0, len(s.seen))
	for _, ad := range s.seen {
		out = append(out, ad)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RSSI != out[j].RSSI {
			return out[i].RSSI > out[j].RSSI
		}
		return out[i].Address < out[j].Address
	})
	return out
}

// Discover scans until ctx ends and returns every LPF2 hub that advertised.
// onFound, if set, is called once per newly seen hub from the scan goroutine.
func (t *Transport) Discover(ctx context.Context, onFound func(Advertisement)) ([]Advertisement, error) {
	set := newAdvertisementSet()
	errc := make(chan error, 1)

	go func() {
		errc <- t.adapter.Scan(func(a *bluetooth.Adapter, r bluetooth.ScanResult) {
			if !r.HasServiceUUID(hubService) {
				return
			}
			ad := Advertisement{Address: r.Address.String(), Name: r.LocalName(), RSSI: r.RSSI}
			if set.add(ad) {
				t.log.Debug("hub advertised", "address", ad.Address, "name", ad.Name, "rssi", ad.RSSI)
				if onFound != nil {
					onFound(ad)
				}
			}
		})
	}()

	select {
	case err := <-errc:
		if err != nil {
			return set.list(), fmt.Errorf("scan failed: %w", err)
		}
	case <-ctx.Done():
		t.adapter.StopScan()
		<-errc
	}
	return set.list(), nil
}
