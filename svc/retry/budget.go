package retry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/meshcore/sidecar/collaborators"
)

// budgetSlots is the number of windows the TTL is divided into; deposits and
// withdrawals age out of the budget one slot at a time rather than all at
// once at the TTL boundary.
const budgetSlots = 10

type slot struct {
	deposits    int64
	withdrawals int64
}

// Budget is a sliding-window token bucket implementing retry
// budget: per-second refill is max(MinRetriesPerSecond, RetryRatio ×
// success-rps), approximated here by weighting the deposit count in the
// window by RetryRatio and adding a constant reserve of
// MinRetriesPerSecond × TTL.
type Budget struct {
	spec     collaborators.BudgetSpec
	slotDur  time.Duration
	mu       sync.Mutex
	slots    [budgetSlots]slot
	cur      int
	lastTick time.Time

	withdrawnTotal int64
	depositedTotal int64
}

// NewBudget constructs a Budget from spec.
func NewBudget(spec collaborators.BudgetSpec) *Budget {
	dur := spec.TTL / budgetSlots
	if dur <= 0 {
		dur = time.Millisecond
	}
	return &Budget{spec: spec, slotDur: dur, lastTick: time.Now()}
}

// advance must be called with mu held. It zeroes out slots that have aged
// past the window since the last call.
func (b *Budget) advance() {
	elapsed := time.Since(b.lastTick)
	n := int(elapsed / b.slotDur)
	if n <= 0 {
		return
	}
	if n > budgetSlots {
		n = budgetSlots
	}
	for i := 0; i < n; i++ {
		b.cur = (b.cur + 1) % budgetSlots
		b.slots[b.cur] = slot{}
	}
	b.lastTick = b.lastTick.Add(time.Duration(n) * b.slotDur)
}

func (b *Budget) totals() (deposits, withdrawals int64) {
	for _, s := range b.slots {
		deposits += s.deposits
		withdrawals += s.withdrawals
	}
	return
}

// Deposit credits the budget for one successful response.
func (b *Budget) Deposit() {
	b.mu.Lock()
	b.advance()
	b.slots[b.cur].deposits++
	b.mu.Unlock()
	atomic.AddInt64(&b.depositedTotal, 1)
}

// Withdraw attempts to spend one unit of retry credit. It reports false
// when the budget has no credit left, meaning the caller must surface the
// original failure rather than retrying.
func (b *Budget) Withdraw() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()
	deposits, withdrawals := b.totals()
	reserve := b.spec.MinRetriesPerSecond * b.spec.TTL.Seconds()
	allowed := float64(deposits)*b.spec.RetryRatio+reserve > float64(withdrawals)
	if !allowed {
		return false
	}
	b.slots[b.cur].withdrawals++
	atomic.AddInt64(&b.withdrawnTotal, 1)
	return true
}

// Stats reports cumulative deposit/withdrawal counts, for tests and
// metrics; it is not windowed.
func (b *Budget) Stats() (deposited, withdrawn int64) {
	return atomic.LoadInt64(&b.depositedTotal), atomic.LoadInt64(&b.withdrawnTotal)
}
