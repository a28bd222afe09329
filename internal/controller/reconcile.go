package controller

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/logs"
	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/metrics"
	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/repo"
	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/vpn/wireguard"
)

// Entry — пир из реестра и его октет.
type Entry struct {
	Name  string `json:"name"`
	Octet int    `json:"octet"`
}

// Report — расхождения реестра и интерфейса. Ничего не чинит, только показывает.
type Report struct {
	Interface  string           `json:"interface"`
	Registered int              `json:"registered"`
	Live       int              `json:"live"`
	Orphaned   []Entry          `json:"orphaned,omitempty"`  // есть в реестре, нет на интерфейсе
	Unknown    []int            `json:"unknown,omitempty"`   // есть на интерфейсе, нет в реестре
	Conflicts  map[int][]string `json:"conflicts,omitempty"` // один октет у нескольких записей
	Corrupt    []string         `json:"corrupt,omitempty"`
}

func (r Report) Clean() bool {
	return len(r.Orphaned) == 0 && len(r.Unknown) == 0 && len(r.Conflicts) == 0 && len(r.Corrupt) == 0
}

type Reconciler struct {
	Store   repo.PeerStore
	VPN     wireguard.Controller
	Metrics *metrics.Metrics
}

func NewReconciler(store repo.PeerStore, vpn wireguard.Controller, m *metrics.Metrics) *Reconciler {
	return &Reconciler{Store: store, VPN: vpn, Metrics: m}
}

func (r *Reconciler) Reconcile(ctx context.Context) (Report, error) {
	rep := Report{Interface: r.VPN.Interface()}

	live, err := r.VPN.ListAssignedAddresses(ctx)
	if err != nil {
		return rep, fmt.Errorf("list assigned addresses: %w", err)
	}
	liveSet := make(map[int]bool, len(live))
	for _, o := range live {
		liveSet[o] = true
	}
	rep.Live = len(liveSet)

	names, err := r.Store.List(ctx)
	if err != nil {
		return rep, err
	}

	// 1) записи реестра
	owners := map[int][]string{}
	for _, name := range names {
		rec, err := r.Store.Read(ctx, name)
		switch {
		case errors.Is(err, repo.ErrCorruptRecord):
			rep.Corrupt = append(rep.Corrupt, name)
			continue
		case errors.Is(err, repo.ErrNotFound):
			// удалили между List и Read
			continue
		case err != nil:
			return rep, err
		}
		rep.Registered++
		owners[rec.IPv4Segment] = append(owners[rec.IPv4Segment], name)
		if !liveSet[rec.IPv4Segment] {
			rep.Orphaned = append(rep.Orphaned, Entry{Name: name, Octet: rec.IPv4Segment})
		}
	}
	for octet, who := range owners {
		if len(who) > 1 {
			if rep.Conflicts == nil {
				rep.Conflicts = map[int][]string{}
			}
			rep.Conflicts[octet] = who
		}
	}

	// 2) живые адреса без записи
	for o := range liveSet {
		if _, ok := owners[o]; !ok {
			rep.Unknown = append(rep.Unknown, o)
		}
	}
	sort.Ints(rep.Unknown)

	r.Metrics.SetPeers(rep.Registered)
	r.Metrics.SetDrift("orphaned", len(rep.Orphaned))
	r.Metrics.SetDrift("unknown", len(rep.Unknown))
	r.Metrics.SetDrift("conflict", len(rep.Conflicts))
	r.Metrics.SetDrift("corrupt", len(rep.Corrupt))

	if !rep.Clean() {
		logs.Logger.WithFields(logrus.Fields{
			"interface": rep.Interface,
			"orphaned":  len(rep.Orphaned),
			"unknown":   len(rep.Unknown),
			"conflicts": len(rep.Conflicts),
			"corrupt":   len(rep.Corrupt),
		}).Warn("registry drifted from interface state")
	}
	return rep, nil
}
