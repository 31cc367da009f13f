package tap

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

type DriverOptions struct {
	Authenticator Authenticator
	// Schemas defaults to the embedded schemas.
	Schemas SchemaSource
	// State defaults to an empty state.
	State       *State
	RetryPolicy *RetryPolicy
}

// Driver walks the stream graph parents first, syncing each child stream once per
// record of its parent.
type Driver struct {
	sc      *SyncContext
	graph   *StreamGraph
	out     Emitter
	schemas SchemaSource
	state   *State
	streams map[string]*Stream
	needed  map[string]bool

	failures []error
}

func NewDriver(sc *SyncContext, graph *StreamGraph, out Emitter, opts DriverOptions) (*Driver, error) {
	if opts.Authenticator == nil {
		return nil, errors.New("driver needs an authenticator")
	}
	result := &Driver{
		sc:      sc,
		graph:   graph,
		out:     out,
		schemas: opts.Schemas,
		state:   opts.State,
		streams: make(map[string]*Stream),
		needed:  make(map[string]bool),
	}
	if result.schemas == nil {
		result.schemas = DefaultSchemas()
	}
	if result.state == nil {
		result.state = NewState()
	}

	for _, name := range sc.Selected {
		if _, ok := graph.Definition(name); !ok {
			return nil, fmt.Errorf("unknown stream %s", name)
		}
	}

	baseURL := sc.Config.BaseURL()
	for _, def := range graph.TopologicalOrder() {
		stream, err := NewStream(def, StreamOptions{
			BaseURL:         baseURL,
			Authenticator:   opts.Authenticator,
			NewRequest:      sc.APIBuilder,
			RetryPolicy:     opts.RetryPolicy,
			FieldTransforms: sc.Config.FieldTransforms[def.Name],
		})
		if err != nil {
			return nil, err
		}
		result.streams[def.Name] = stream

		// unselected parents still sync to produce their children's contexts
		if sc.IsSelected(def.Name) {
			result.needed[def.Name] = true
			for _, ancestor := range graph.Ancestors(def.Name) {
				result.needed[ancestor] = true
			}
		}
	}
	return result, nil
}

// State returns the bookmarks reached so far.
func (d *Driver) State() *State {
	return d.state
}

// Run syncs every needed stream. A fatal error aborts the run at once; any other
// stream failure is logged, its children are skipped, and it is returned joined
// with the others after every remaining stream has been synced.
func (d *Driver) Run(ctx context.Context) error {
	Init()
	for _, def := range d.graph.TopologicalOrder() {
		if !d.sc.IsSelected(def.Name) {
			continue
		}
		schema, err := d.schemas.Schema(def)
		if err != nil {
			return err
		}
		if err = d.out.WriteSchema(def, schema); err != nil {
			return fmt.Errorf("%w: %w", ErrOutput, err)
		}
	}

	rootContext := NewContext("merchant_id", d.sc.Config.MerchantID)
	for _, root := range d.graph.Roots() {
		if !d.needed[root.Name] {
			continue
		}
		if err := d.syncStream(ctx, root.Name, rootContext); err != nil {
			return err
		}
	}

	if err := d.out.WriteState(d.state); err != nil {
		return fmt.Errorf("%w: %w", ErrOutput, err)
	}
	return errors.Join(d.failures...)
}

// syncStream syncs one stream context and, record by record, its children.
// Only fatal errors are returned.
func (d *Driver) syncStream(ctx context.Context, name string, sctx Context) error {
	stream := d.streams[name]
	def := stream.Definition
	selected := d.sc.IsSelected(name)
	var children []string
	for _, child := range d.graph.Children(name) {
		if d.needed[child.Name] {
			children = append(children, child.Name)
		}
	}
	log := Logger().With(zap.String("stream", name), zap.Stringer("context", sctx))
	log.Info("syncing stream")

	start := d.state.StartingValue(name, def.ReplicationKey, d.sc.Config.StartDate)
	count := 0
	err := stream.Sync(ctx, sctx, start, func(record Record) error {
		if selected {
			if err := d.out.WriteRecord(name, record); err != nil {
				return fmt.Errorf("%w: %w", ErrOutput, err)
			}
			count++
			if def.ReplicationKey != "" {
				d.state.Track(name, def.ReplicationKey, record[def.ReplicationKey])
			}
		}
		if len(children) == 0 {
			return nil
		}
		childContext, err := stream.ChildContext(record, sctx)
		if err != nil {
			log.Warn("skipping children of record", zap.Error(err))
			return nil
		}
		for _, child := range children {
			if err = d.syncStream(ctx, child, childContext); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		d.state.Discard(name)
		if IsFatal(err) || ctx.Err() != nil {
			return err
		}
		log.Error("stream failed", zap.Int("records", count), zap.Error(err))
		d.failures = append(d.failures, &StreamError{Stream: name, Context: sctx, Err: err})
		return nil
	}

	d.state.Commit(name)
	log.Info("synced stream", zap.Int("records", count))
	if selected && def.ReplicationKey != "" {
		if err = d.out.WriteState(d.state); err != nil {
			return fmt.Errorf("%w: %w", ErrOutput, err)
		}
	}
	return nil
}
