package fetcher

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
)

// DecodeJSONArray streams the elements of a JSON array to a channel. The
// input may be the naked array itself or an envelope object wrapping it
// ({"listings": [...], "total": 90}); the first array-valued field wins.
// Both channels are closed when processing completes.
func DecodeJSONArray[T any](ctx context.Context, r io.Reader) (<-chan T, <-chan error) {
	outCh := make(chan T, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(outCh)
		defer close(errCh)

		decoder := json.NewDecoder(r)

		tok, err := decoder.Token()
		if err != nil {
			if err == io.EOF {
				return
			}
			errCh <- eris.Wrap(err, "json: read opening token")
			return
		}

		switch delim, ok := tok.(json.Delim); {
		case ok && delim == '[':
		case ok && delim == '{':
			if err := seekArrayField(decoder); err != nil {
				errCh <- err
				return
			}
		default:
			errCh <- eris.Errorf("json: expected '[' or '{', got %v", tok)
			return
		}

		for decoder.More() {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "json: context cancelled")
				return
			}

			var item T
			if err := decoder.Decode(&item); err != nil {
				errCh <- eris.Wrap(err, "json: decode element")
				return
			}

			select {
			case outCh <- item:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "json: context cancelled")
				return
			}
		}

		if _, err := decoder.Token(); err != nil && err != io.EOF {
			errCh <- eris.Wrap(err, "json: read closing token")
		}
	}()

	return outCh, errCh
}

// seekArrayField advances the decoder to just past the opening '[' of the
// first array-valued field in an envelope object.
func seekArrayField(dec *json.Decoder) error {
	for {
		keyTok, err := dec.Token()
		if err != nil {
			return eris.Wrap(err, "json: read envelope key")
		}
		if d, ok := keyTok.(json.Delim); ok && d == '}' {
			return eris.New("json: envelope has no array field")
		}

		valTok, err := dec.Token()
		if err != nil {
			return eris.Wrap(err, "json: read envelope value")
		}
		d, ok := valTok.(json.Delim)
		if !ok {
			continue
		}
		if d == '[' {
			return nil
		}
		if err := skipValue(dec); err != nil {
			return eris.Wrap(err, "json: skip envelope value")
		}
	}
}

// skipValue consumes the rest of a compound value whose opening delimiter
// has already been read.
func skipValue(dec *json.Decoder) error {
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	return nil
}
