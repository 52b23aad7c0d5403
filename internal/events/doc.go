// Package events is the channel through which the bridge tells embedding code
// what happened: lifecycle changes, background errors and note changes pushed
// by the remote API's webhooks.
//
//	ch, _ := bus.Subscribe(ctx, events.KindNoteCreated, events.KindNoteDeleted)
//	for ev := range ch {
//	    change := ev.Payload.(events.NoteChange)
//	    ...
//	}
package events
