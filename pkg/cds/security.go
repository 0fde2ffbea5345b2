package cds

import (
	"sync/atomic"

	"github.com/jvmshare/cds/pkg/loader"
)

// SecurityInfoTables holds the three parallel arrays mapping a classpath
// entry index to the protection-domain, jar-URL and jar-manifest objects
// for shared classes loaded from that entry.
//
// Slots start empty and are populated lazily on first real use, possibly
// by several loading threads at once. Publication is a single
// compare-and-set per slot: the first successful writer wins and losers'
// work is discarded, so every thread — and every later reader — observes
// the same value. No lock is held while a candidate value is constructed,
// because that construction can itself trigger further class loading.
//
// The tables are a GC root: OopsDo exposes every populated slot to the
// collector.
type SecurityInfoTables struct {
	protectionDomains []atomic.Pointer[loader.ProtectionDomain]
	jarURLs           []atomic.Pointer[loader.JarURL]
	jarManifests      []atomic.Pointer[loader.Manifest]
}

// AllocateSharedDataArrays sizes all three tables to the number of
// classpath entries recorded in the archive header. Called once, at
// archive-load time, before any lookup runs.
func (s *SecurityInfoTables) AllocateSharedDataArrays(size int) {
	s.protectionDomains = make([]atomic.Pointer[loader.ProtectionDomain], size)
	s.jarURLs = make([]atomic.Pointer[loader.JarURL], size)
	s.jarManifests = make([]atomic.Pointer[loader.Manifest], size)
}

// Size returns the classpath-entry capacity of the tables.
func (s *SecurityInfoTables) Size() int {
	return len(s.protectionDomains)
}

// SharedProtectionDomain reads a slot; nil means not yet populated.
func (s *SecurityInfoTables) SharedProtectionDomain(index int) *loader.ProtectionDomain {
	return s.protectionDomains[index].Load()
}

// AtomicSetSharedProtectionDomain publishes pd into the slot unless a
// racing writer got there first. Returns the value that is authoritative
// for all observers afterwards.
func (s *SecurityInfoTables) AtomicSetSharedProtectionDomain(index int, pd *loader.ProtectionDomain) *loader.ProtectionDomain {
	if s.protectionDomains[index].CompareAndSwap(nil, pd) {
		return pd
	}
	return s.protectionDomains[index].Load()
}

// SharedJarURL reads a slot; nil means not yet populated.
func (s *SecurityInfoTables) SharedJarURL(index int) *loader.JarURL {
	return s.jarURLs[index].Load()
}

// AtomicSetSharedJarURL publishes url into the slot unless a racing
// writer got there first.
func (s *SecurityInfoTables) AtomicSetSharedJarURL(index int, url *loader.JarURL) *loader.JarURL {
	if s.jarURLs[index].CompareAndSwap(nil, url) {
		return url
	}
	return s.jarURLs[index].Load()
}

// SharedJarManifest reads a slot; nil means not yet populated.
func (s *SecurityInfoTables) SharedJarManifest(index int) *loader.Manifest {
	return s.jarManifests[index].Load()
}

// AtomicSetSharedJarManifest publishes m into the slot unless a racing
// writer got there first.
func (s *SecurityInfoTables) AtomicSetSharedJarManifest(index int, m *loader.Manifest) *loader.Manifest {
	if s.jarManifests[index].CompareAndSwap(nil, m) {
		return m
	}
	return s.jarManifests[index].Load()
}

// OopVisitor receives every heap-managed object the subsystem holds live.
type OopVisitor func(obj any)

// OopsDo enumerates every populated slot of the three tables, exactly
// once per call. Safe to run concurrently with lookups and with slots
// still being populated: each slot is read atomically, so the visitor
// sees either nothing or a fully constructed object.
func (s *SecurityInfoTables) OopsDo(visit OopVisitor) {
	for i := range s.protectionDomains {
		if pd := s.protectionDomains[i].Load(); pd != nil {
			visit(pd)
		}
	}
	for i := range s.jarURLs {
		if u := s.jarURLs[i].Load(); u != nil {
			visit(u)
		}
	}
	for i := range s.jarManifests {
		if m := s.jarManifests[i].Load(); m != nil {
			visit(m)
		}
	}
}
