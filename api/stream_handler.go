package api

import (
	"fmt"

	"github.com/xraph/forge"

	"github.com/tavlicon/lanes/id"
)

// streamJobEvents serves a job's event history followed by live events
// as Server-Sent Events. Each event is named after its kind and carries
// the JSON-encoded event. The stream ends after the terminal event.
func (a *API) streamJobEvents(ctx forge.Context, sseStream forge.Stream) error {
	jobID, err := id.ParseJobID(ctx.Param("jobId"))
	if err != nil {
		return forge.BadRequest(fmt.Sprintf("invalid job ID: %v", err))
	}

	events, err := a.eng.Stream(sseStream.Context(), jobID)
	if err != nil {
		return mapStoreError(err)
	}

	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			if sendErr := sseStream.SendJSON(string(evt.Kind), evt); sendErr != nil {
				return sendErr
			}
			if flushErr := sseStream.Flush(); flushErr != nil {
				return flushErr
			}
		case <-sseStream.Context().Done():
			return nil
		}
	}
}
