package recipe

import (
	"context"
	"fmt"
	"io"

	"github.com/himanishpuri/FluxMend/pkg/fluxmend"
	"github.com/himanishpuri/FluxMend/pkg/models"
)

// Outcome is what running a recipe produced.
type Outcome struct {
	SessionID string
	Report    *fluxmend.Report
	Result    *fluxmend.SearchResult
	Sector    *models.DecodedSector
	StoredID  string
}

// Run opens a session for r on svc and carries out its steps, printing
// every report to out. A search that ends without a single payload is
// returned as an error together with the partial outcome.
func (r *Recipe) Run(ctx context.Context, svc fluxmend.Service, out io.Writer) (*Outcome, error) {
	sess, err := svc.OpenSession(ctx, r.Target.Coordinate, r.Length)
	if err != nil {
		return nil, err
	}
	outcome := &Outcome{SessionID: sess.ID}

	switch {
	case r.Locate != nil && !r.Locate.aligns(r.Hole):
		res, err := sess.Locate(ctx, r.Locate.Neighbor.Coordinate, r.Locate.MaxGap)
		if err != nil {
			return outcome, err
		}
		outcome.Result = res
		return r.finish(svc, sess, outcome, out)
	case r.Locate != nil:
		n, err := sess.AlignLocated(r.Locate.Neighbor.Coordinate, r.Locate.MaxGap)
		if err != nil {
			return outcome, err
		}
		fmt.Fprintf(out, "# %d located spans\n", n)
	}

	outcome.Report = sess.Analyze()
	fmt.Fprint(out, outcome.Report)
	for _, rank := range r.Drop {
		if err := sess.Drop(rank); err != nil {
			return outcome, fmt.Errorf("drop %d: %w", rank, err)
		}
		before := outcome.Report.Divergence()
		outcome.Report = sess.Analyze()
		fmt.Fprintf(out, "# dropped %d, divergence %d -> %d\n", rank, before, outcome.Report.Divergence())
		fmt.Fprint(out, outcome.Report)
	}

	if r.Hole == nil {
		return outcome, nil
	}
	res, err := sess.BruteForce(ctx, r.Hole.Spec())
	if err != nil {
		return outcome, err
	}
	outcome.Result = res
	return r.finish(svc, sess, outcome, out)
}

func (r *Recipe) finish(svc fluxmend.Service, sess *fluxmend.Session, outcome *Outcome, out io.Writer) (*Outcome, error) {
	res := outcome.Result
	fmt.Fprintf(out, "# tried %d, %d raw hits, %d distinct\n", res.Tried, res.RawHits, len(res.Hits))

	sector, err := res.Unique()
	if err != nil {
		return outcome, err
	}
	outcome.Sector = &sector
	fmt.Fprintf(out, "# recovered %s: %x\n", sector.Coordinate(), sector.Octets())

	if !r.Accept {
		return outcome, nil
	}
	id, err := svc.Accept(sess, sector)
	if err != nil {
		return outcome, fmt.Errorf("accepting %s: %w", sector.Coordinate(), err)
	}
	outcome.StoredID = id
	fmt.Fprintf(out, "# stored as %s\n", id)
	return outcome, nil
}
