package service

import "sync"

// TenantLocks provides per-tenant mutual exclusion shared by the refresh and
// sync paths: a tenant mid-refresh or mid-sync is never re-entered by an
// overlapping trigger. Acquire never blocks; the caller skips the tenant
// instead of queueing behind the holder.
type TenantLocks struct {
	mu   sync.Mutex
	held map[uint]struct{}
}

func NewTenantLocks() *TenantLocks {
	return &TenantLocks{held: make(map[uint]struct{})}
}

// TryAcquire returns false if the tenant is already held.
func (l *TenantLocks) TryAcquire(tenantID uint) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[tenantID]; ok {
		return false
	}
	l.held[tenantID] = struct{}{}
	return true
}

func (l *TenantLocks) Release(tenantID uint) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, tenantID)
}
