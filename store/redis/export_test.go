package redis

import "context"

// FlushForTest empties the connected database.
func FlushForTest(ctx context.Context, s *Store) error {
	return s.rdb.FlushDB(ctx).Err()
}
