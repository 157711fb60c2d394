// Package extract implements the read side of the pipeline: snapshot,
// CDC, check, and struct extractors, each pushing row.DtItem onto a
// shared pkg/buffer.Buffer for a pkg/sink.Sinker to drain. The
// snapshot and CDC extractors route and filter each row through
// pkg/router and pkg/filter before it reaches the buffer; the check
// extractor routes but does not filter, and the struct extractors
// filter but do not route.
package extract

import (
	"context"

	"github.com/replibridge/replibridge/pkg/row"
)

// Extractor is the read side of one task: it runs until ctx is
// canceled or it exhausts its source (snapshot/struct), pushing
// DtItems onto its buffer as it goes. A CDC extractor's Run only
// returns on ctx cancellation or an unrecoverable error.
// CheckExtractor does not implement it: its Run also takes the check
// log entries and a batch size.
type Extractor interface {
	Run(ctx context.Context) error
}

// TableRef names one source table an extractor reads from, alongside
// the engine it belongs to -- the same shape pkg/check.TableRef uses,
// kept as a separate type here since extract and check are read in
// opposite directions of the pipeline and neither should import the
// other just for this one struct.
type TableRef struct {
	Schema string
	Table  string
	Engine row.EngineKind
}
