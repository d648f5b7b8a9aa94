package pipeline

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"

	"github.com/hed1ad/streamguard/pkg/store"
)

// DumpModel serializes the state of every stateful detector, keyed by its
// position in the configuration.
func (o *Orchestrator) DumpModel() ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	models := make(map[int][]byte)
	for i, p := range o.pipelines {
		data, err := p.detector.Save()
		if err != nil {
			return nil, fmt.Errorf("save %s: %w", p.Name(), err)
		}
		if data != nil {
			models[i] = data
		}
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(models); err != nil {
		return nil, fmt.Errorf("encode model: %w", err)
	}
	return buf.Bytes(), nil
}

// LoadModel restores detector state produced by DumpModel for the same
// configuration.
func (o *Orchestrator) LoadModel(data []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	var models map[int][]byte
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&models); err != nil {
		return fmt.Errorf("decode model: %w", err)
	}
	for i, blob := range models {
		if i < 0 || i >= len(o.pipelines) {
			return fmt.Errorf("model holds algorithm %d, configuration has %d", i, len(o.pipelines))
		}
		p := o.pipelines[i]
		if err := p.detector.Load(blob); err != nil {
			return fmt.Errorf("load %s: %w", p.Name(), err)
		}
	}
	return nil
}

// SaveModel dumps the model into s under name.
func (o *Orchestrator) SaveModel(ctx context.Context, s store.ModelStore, name string) error {
	data, err := o.DumpModel()
	if err != nil {
		return err
	}
	return s.Put(ctx, name, data)
}

// LoadModelFrom restores the model stored in s under name.
func (o *Orchestrator) LoadModelFrom(ctx context.Context, s store.ModelStore, name string) error {
	data, err := s.Get(ctx, name)
	if err != nil {
		return err
	}
	return o.LoadModel(data)
}
