package model

import (
    "testing"

    "github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
    t.Parallel()

    allStates := []string{StatePending, StateAwaitingPayment, StatePaid, StateFailed, StateCancelled, StateRefunded}

    // The complete set of legal edges; every other pair must be
    // rejected.
    legal := map[[2]string]bool{
        {StatePending, StateAwaitingPayment}:         true,
        {StatePending, StateCancelled}:               true,
        {StateAwaitingPayment, StatePaid}:            true,
        {StateAwaitingPayment, StateFailed}:          true,
        {StateAwaitingPayment, StateCancelled}:       true,
        {StateFailed, StateAwaitingPayment}:          true,
        {StatePaid, StateRefunded}:                   true,
    }

    for _, from := range allStates {
        for _, to := range allStates {
            got := CanTransition(from, to)
            want := legal[[2]string{from, to}]
            assert.Equalf(t, want, got, "transition %s -> %s", from, to)
        }
    }
}

func TestTerminalStatesHaveNoForwardEdges(t *testing.T) {
    t.Parallel()

    allStates := []string{StatePending, StateAwaitingPayment, StatePaid, StateFailed, StateCancelled, StateRefunded}
    for _, to := range allStates {
        assert.Falsef(t, CanTransition(StateCancelled, to), "CANCELLED must be terminal, got edge to %s", to)
        assert.Falsef(t, CanTransition(StateRefunded, to), "REFUNDED must be terminal, got edge to %s", to)
    }
    // PAID leaves only through the explicit refund path.
    for _, to := range allStates {
        if to == StateRefunded {
            continue
        }
        assert.Falsef(t, CanTransition(StatePaid, to), "PAID must only move to REFUNDED, got edge to %s", to)
    }
}

func TestCanAttachOrder(t *testing.T) {
    t.Parallel()

    // First payment attempt: a fresh PENDING booking takes an order.
    assert.True(t, CanAttachOrder(StatePending, false))
    // A live order must never be re-bound.
    assert.False(t, CanAttachOrder(StatePending, true))
    // Retry path: the fresh order replaces the orphaned one.
    assert.True(t, CanAttachOrder(StateFailed, true))
    assert.True(t, CanAttachOrder(StateFailed, false))

    for _, s := range []string{StateAwaitingPayment, StatePaid, StateCancelled, StateRefunded} {
        assert.Falsef(t, CanAttachOrder(s, false), "no order attachment from %s", s)
        assert.Falsef(t, CanAttachOrder(s, true), "no order attachment from %s", s)
    }
}

func TestValidState(t *testing.T) {
    t.Parallel()

    for _, s := range []string{StatePending, StateAwaitingPayment, StatePaid, StateFailed, StateCancelled, StateRefunded} {
        assert.True(t, ValidState(s), s)
    }
    assert.False(t, ValidState("SHIPPED"))
    assert.False(t, ValidState(""))
    assert.False(t, ValidState("paid"))
}
