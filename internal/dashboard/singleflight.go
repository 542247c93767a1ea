package dashboard

import "context"

// shareFetch runs fn once per key across concurrent callers. fn runs detached from the
// first caller's cancellation so a caller that gives up does not fail the others; each
// caller still stops waiting when its own ctx is done.
func (s *Service) shareFetch(ctx context.Context, key string, fn func(context.Context) ([]byte, error)) ([]byte, bool, error) {
	resultChan := s.flights.DoChan(key, func() (interface{}, error) {
		return fn(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return nil, res.Shared, res.Err
		}
		return res.Val.([]byte), res.Shared, nil
	}
}
