package collector

import (
	"context"

	"infrasight/internal/models"
)

// Source is what a Sampler polls. Local and AWS differ only in how a reading is obtained.
type Source interface {
	Name() models.Source
	Fetch(ctx context.Context) (models.Reading, error)
}

type LocalPredictor interface {
	PredictLocal(ctx context.Context, m models.Metrics) (models.Prediction, error)
}

type AWSPredictor interface {
	PredictAWS(ctx context.Context) (models.Reading, error)
}

// LocalSource synthesizes inputs and asks the prediction service to score them.
type LocalSource struct {
	client LocalPredictor
	inputs InputSynthesizer
}

func NewLocalSource(client LocalPredictor, inputs InputSynthesizer) *LocalSource {
	if inputs == nil {
		inputs = RandomInputs{}
	}
	return &LocalSource{client: client, inputs: inputs}
}

func (l *LocalSource) Name() models.Source { return models.SourceLocal }

func (l *LocalSource) Fetch(ctx context.Context) (models.Reading, error) {
	m, err := l.inputs.Synthesize(ctx)
	if err != nil {
		return models.Reading{}, err
	}
	p, err := l.client.PredictLocal(ctx, m)
	if err != nil {
		return models.Reading{}, err
	}
	return models.Reading{Metrics: m, Prediction: p}, nil
}

// AWSSource fetches remote metrics and their score in one call.
type AWSSource struct {
	client AWSPredictor
}

func NewAWSSource(client AWSPredictor) *AWSSource {
	return &AWSSource{client: client}
}

func (a *AWSSource) Name() models.Source { return models.SourceAWS }

func (a *AWSSource) Fetch(ctx context.Context) (models.Reading, error) {
	return a.client.PredictAWS(ctx)
}
