// Command lanesd serves the lanes HTTP API and the LWP wire protocol on
// one address, with simulated image-edit and mesh-generation models.
//
// Usage:
//
//	lanesd serve --addr :8000 --output-dir data/output
//
// Then in another terminal:
//
//	# Submit an image edit
//	curl -X POST http://localhost:8000/v1/jobs/image_edit \
//	  -H "Content-Type: application/json" \
//	  -d '{"image":"aGVsbG8=","params":{"positive_prompt":"a watercolor fox"}}'
//
//	# Follow its progress
//	curl -N http://localhost:8000/v1/jobs/<job_id>/events
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
