// Package renewal runs the periodic sweep that grants subscription tokens for
// billing periods that started recently.
//
// The sweep lists active subscriptions whose period started within the
// configured window and asks the subscription reconciler to credit each one.
// Credits are deduplicated per user and period, so the sweep can be triggered
// by an external scheduler, the in-process cron runner, or both.
package renewal
