package extract

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/23skdu/longbow-lens/internal/attention"
	"github.com/23skdu/longbow-lens/internal/encoder"
	"github.com/23skdu/longbow-lens/internal/encoder/tokenizer"
)

var tracer = otel.Tracer("lens-extract")

// Native runs the in-process encoder.
type Native struct {
	tok   *tokenizer.WordPieceTokenizer
	model *encoder.Model
	clsID int
	sepID int
}

var _ attention.Extractor = (*Native)(nil)

// NewNative pairs a tokenizer with an encoder. The tokenizer vocabulary must
// fit the encoder's embedding table and contain [CLS] and [SEP].
func NewNative(tok *tokenizer.WordPieceTokenizer, m *encoder.Model) (*Native, error) {
	if tok.VocabSize() > m.Config.VocabSize {
		return nil, fmt.Errorf("vocabulary of %d tokens exceeds model vocab size %d", tok.VocabSize(), m.Config.VocabSize)
	}
	clsID, ok := tok.ID(tokenizer.ClsToken)
	if !ok {
		return nil, fmt.Errorf("vocabulary has no %s token", tokenizer.ClsToken)
	}
	sepID, ok := tok.ID(tokenizer.SepToken)
	if !ok {
		return nil, fmt.Errorf("vocabulary has no %s token", tokenizer.SepToken)
	}
	return &Native{tok: tok, model: m, clsID: clsID, sepID: sepID}, nil
}

func (n *Native) Layers() int {
	return n.model.Config.NumLayers
}

// Extract tokenizes text, wraps it in [CLS] ... [SEP] and captures the
// attention of every layer and head.
func (n *Native) Extract(ctx context.Context, text string) (*attention.Capture, error) {
	_, span := tracer.Start(ctx, "native.Extract")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tokens, ids := wrapSpecial(n.tok, text, n.model.Config.MaxPositions, n.clsID, n.sepID)
	span.SetAttributes(attribute.Int("seq_len", len(ids)))

	_, attentions, err := n.model.Forward(ids)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("encoder forward: %w", err)
	}

	stack := attention.NewStack(n.model.Config.NumHeads, len(ids))
	for _, heads := range attentions {
		if err := stack.AddLayer(heads); err != nil {
			return nil, err
		}
	}
	return &attention.Capture{Text: text, Tokens: tokens, Stack: stack}, nil
}

// wrapSpecial tokenizes text and adds [CLS]/[SEP], truncating the body so the
// whole sequence fits maxLen.
func wrapSpecial(tok *tokenizer.WordPieceTokenizer, text string, maxLen, clsID, sepID int) ([]string, []int) {
	bodyTokens, bodyIDs := tok.Tokenize(text)
	if limit := maxLen - 2; limit >= 0 && len(bodyIDs) > limit {
		log.Warn().Int("tokens", len(bodyIDs)).Int("max", limit).Msg("Truncating input to model max sequence length")
		bodyTokens = bodyTokens[:limit]
		bodyIDs = bodyIDs[:limit]
	}

	tokens := make([]string, 0, len(bodyTokens)+2)
	tokens = append(tokens, tokenizer.ClsToken)
	tokens = append(tokens, bodyTokens...)
	tokens = append(tokens, tokenizer.SepToken)

	ids := make([]int, 0, len(bodyIDs)+2)
	ids = append(ids, clsID)
	ids = append(ids, bodyIDs...)
	ids = append(ids, sepID)
	return tokens, ids
}
