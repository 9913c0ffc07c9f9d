// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"fmt"
)

// NotificationType represents the type of a notification message.
type NotificationType int

// NotificationCallback is used for a caller to provide a callback for
// notifications about various mempool events.
type NotificationCallback func(*Notification)

// Constants for the type of a notification message.
const (
	// NTTxAccepted indicates a transaction entered the pool.
	NTTxAccepted NotificationType = iota

	// NTTxRemoved indicates a transaction left the pool.
	NTTxRemoved
)

// notificationTypeStrings is a map of notification types back to their constant
// names for pretty printing.
var notificationTypeStrings = map[NotificationType]string{
	NTTxAccepted: "NTTxAccepted",
	NTTxRemoved:  "NTTxRemoved",
}

// String returns the NotificationType in human-readable form.
func (n NotificationType) String() string {
	if s, ok := notificationTypeStrings[n]; ok {
		return s
	}
	return fmt.Sprintf("Unknown Notification Type (%d)", int(n))
}

// RemovalReason describes why a transaction left the pool.
type RemovalReason int

const (
	// RemovedByCaller is an explicit Remove.
	RemovedByCaller RemovalReason = iota

	// RemovedInBlock means the transaction was confirmed.
	RemovedInBlock

	// RemovedConflict means a confirmed transaction spent the same output
	// or nullifier.
	RemovedConflict

	// RemovedInvalidAnchor means the commitment root the transaction
	// proves against is no longer part of the chain.
	RemovedInvalidAnchor

	// RemovedImmature means a coinbase output the transaction spends is no
	// longer mature.
	RemovedImmature

	// RemovedSizeLimit means the transaction was evicted to bring the
	// pool under its memory limit.
	RemovedSizeLimit
)

var removalReasonStrings = map[RemovalReason]string{
	RemovedByCaller:      "caller",
	RemovedInBlock:       "block",
	RemovedConflict:      "conflict",
	RemovedInvalidAnchor: "anchor",
	RemovedImmature:      "immature",
	RemovedSizeLimit:     "sizelimit",
}

// String returns the RemovalReason in human-readable form.
func (r RemovalReason) String() string {
	if s, ok := removalReasonStrings[r]; ok {
		return s
	}
	return fmt.Sprintf("Unknown RemovalReason (%d)", int(r))
}

// TxRemovedData is the data of an NTTxRemoved notification.
type TxRemovedData struct {
	Desc   *TxDesc
	Reason RemovalReason
}

// Notification defines notification that is sent to the caller via the callback
// function provided during the call to Subscribe and consists of a
// notification type as well as associated data that depends on the type as
// follows:
//   - NTTxAccepted: *TxDesc
//   - NTTxRemoved:  *TxRemovedData
type Notification struct {
	Type NotificationType
	Data interface{}
}

// Subscribe registers a callback for pool notifications.  Callbacks run after
// the pool lock is released, in the order the changes were made by a single
// call, and may call back into the pool.
func (mp *TxPool) Subscribe(callback NotificationCallback) {
	mp.notificationsLock.Lock()
	mp.notifications = append(mp.notifications, callback)
	mp.notificationsLock.Unlock()
}

// queueNotification records a notification with the passed type and data to
// be sent once the pool lock is released.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) queueNotification(typ NotificationType, data interface{}) {
	mp.pending = append(mp.pending, Notification{Type: typ, Data: data})
}

// unlock releases the pool lock held for writes and then sends the queued
// notifications to every subscriber.
func (mp *TxPool) unlock() {
	pending := mp.pending
	mp.pending = nil
	mp.mtx.Unlock()

	for i := range pending {
		mp.sendNotification(&pending[i])
	}
}

// sendNotification sends a notification to every subscriber.
func (mp *TxPool) sendNotification(n *Notification) {
	mp.notificationsLock.RLock()
	callbacks := mp.notifications
	mp.notificationsLock.RUnlock()

	for _, callback := range callbacks {
		callback(n)
	}
}
