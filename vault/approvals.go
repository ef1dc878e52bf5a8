// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vault

import (
	"github.com/luxfi/geth/common"
)

// ApproveSender sets the rights holder grants sender to act on the
// holder's positions. ApprovalNone revokes. Holders always act for
// themselves without an approval entry, so self-approval is rejected.
func (m *MultiVault) ApproveSender(holder, sender common.Address, approval ApprovalTypes) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if holder == sender {
		return ErrSelfApproval
	}
	if approval == ApprovalNone {
		if grants, ok := m.approvals[holder]; ok {
			delete(grants, sender)
			if len(grants) == 0 {
				delete(m.approvals, holder)
			}
		}
	} else {
		grants, ok := m.approvals[holder]
		if !ok {
			grants = make(map[common.Address]ApprovalTypes)
			m.approvals[holder] = grants
		}
		grants[sender] = approval
	}

	m.emit(EventApprovalUpdated, ApprovalUpdatedEvent{
		Holder:   holder,
		Sender:   sender,
		Approval: approval,
	})
	return nil
}

// GetApproval returns the rights holder has granted sender.
func (m *MultiVault) GetApproval(holder, sender common.Address) ApprovalTypes {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.approvalFor(holder, sender)
}

func (m *MultiVault) approvalFor(holder, sender common.Address) ApprovalTypes {
	if grants, ok := m.approvals[holder]; ok {
		return grants[sender]
	}
	return ApprovalNone
}
