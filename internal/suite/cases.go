package suite

import (
	"context"
	"strconv"
	"time"

	"github.com/pior/emc/text"
)

// Cases is the full correctness suite.
var Cases = []Case{
	{Name: "add", Run: testAdd},
	{Name: "add_noreply", Run: testAddNoReply},
	{Name: "append", Run: testAppend},
	{Name: "append_noreply", Run: testAppendNoReply},
	{Name: "prepend", Run: testPrepend},
	{Name: "prepend_noreply", Run: testPrependNoReply},
	{Name: "replace", Run: testReplace},
	{Name: "replace_noreply", Run: testReplaceNoReply},
	{Name: "decr", Run: testDecr},
	{Name: "decr_noreply", Run: testDecrNoReply},
	{Name: "incr", Run: testIncr},
	{Name: "incr_noreply", Run: testIncrNoReply},
	{Name: "delete", Run: testDelete},
	{Name: "delete_noreply", Run: testDeleteNoReply},
	{Name: "flush_all", Run: testFlushAll},
	{Name: "set_and_get_small_key", Run: testSetGetSmallKey},
	{Name: "set_and_get_large_value", Run: testSetGetLargeValue},
	{Name: "set_flags", Run: testSetFlags},
	{Name: "set_noreply", Run: testSetNoReply},
	{Name: "get_multiple", Run: testGetMultiple},
	{Name: "gets", Run: testGets},
	{Name: "gets_multi", Run: testGetsMulti},
	{Name: "cas", Run: testCAS},
	{Name: "stats", Run: testStats},
	{Name: "version", Run: testVersion},
	{Name: "quit", Run: testQuit},
	{Name: "get_invalid_key", Run: testGetInvalidKey},
	{Name: "decr_underflow", Run: testDecrUnderflow},
	{Name: "incr_overflow", Run: testIncrOverflow},
	{Name: "incr_over_size", Run: testIncrOverSize},
	{Name: "set_max_key", Run: testSetMaxKey},
	{Name: "set_too_large_key", Run: testSetTooLargeKey},
	{Name: "set_too_large_value", Run: testSetTooLargeValue},
	{Name: "set_exptime_abs_2s", Slow: true, Run: testSetExptimeAbs},
	{Name: "set_exptime_rel_1s", Slow: true, Run: testSetExptimeRel},
	{Name: "touch", Slow: true, Run: testTouch},
	{Name: "touch_noreply", Slow: true, Run: testTouchNoReply},
}

func testAdd(ctx context.Context, e *Env) error {
	item := text.Item{Key: e.key(8), Value: e.value(10, 10)}

	if err := e.Client.Add(ctx, item, 0, false); err != nil {
		return err
	}
	if err := expectValue(ctx, e, item.Key, item.Value); err != nil {
		return err
	}
	return expectErr(e.Client.Add(ctx, item, 0, false), text.ErrStoreFailed)
}

func testAddNoReply(ctx context.Context, e *Env) error {
	item := text.Item{Key: e.key(8), Value: e.value(10, 10)}

	if err := e.Client.Add(ctx, item, 0, true); err != nil {
		return err
	}
	return expectValue(ctx, e, item.Key, item.Value)
}

// testConcat checks append or prepend against a missing then an existing key.
func testConcat(ctx context.Context, e *Env, prepend, noreply bool) error {
	key := e.key(8)
	first, second := e.value(10, 10), e.value(10, 10)

	concat := e.Client.Append
	want := append(append([]byte{}, first...), second...)
	if prepend {
		concat = e.Client.Prepend
		want = append(append([]byte{}, second...), first...)
	}

	if !noreply {
		if err := expectErr(concat(ctx, text.Item{Key: key, Value: first}, 0, false), text.ErrStoreFailed); err != nil {
			return err
		}
	}
	if err := e.Client.Set(ctx, text.Item{Key: key, Value: first}, 0, false); err != nil {
		return err
	}
	if err := concat(ctx, text.Item{Key: key, Value: second}, 0, noreply); err != nil {
		return err
	}
	return expectValue(ctx, e, key, want)
}

func testAppend(ctx context.Context, e *Env) error         { return testConcat(ctx, e, false, false) }
func testAppendNoReply(ctx context.Context, e *Env) error  { return testConcat(ctx, e, false, true) }
func testPrepend(ctx context.Context, e *Env) error        { return testConcat(ctx, e, true, false) }
func testPrependNoReply(ctx context.Context, e *Env) error { return testConcat(ctx, e, true, true) }

func testReplace(ctx context.Context, e *Env) error {
	key := e.key(8)
	first, second := e.value(10, 10), e.value(10, 10)

	if err := expectErr(e.Client.Replace(ctx, text.Item{Key: key, Value: first}, 0, false), text.ErrStoreFailed); err != nil {
		return err
	}
	if err := e.Client.Set(ctx, text.Item{Key: key, Value: first}, 0, false); err != nil {
		return err
	}
	if err := e.Client.Replace(ctx, text.Item{Key: key, Value: second}, 0, false); err != nil {
		return err
	}
	return expectValue(ctx, e, key, second)
}

func testReplaceNoReply(ctx context.Context, e *Env) error {
	key := e.key(8)
	first, second := e.value(10, 10), e.value(10, 10)

	if err := e.Client.Set(ctx, text.Item{Key: key, Value: first}, 0, false); err != nil {
		return err
	}
	if err := e.Client.Replace(ctx, text.Item{Key: key, Value: second}, 0, true); err != nil {
		return err
	}
	return expectValue(ctx, e, key, second)
}

// testArith applies delta to a counter starting at start and checks the
// result, read back from the reply or with a get when noreply.
func testArith(ctx context.Context, e *Env, incr, noreply bool, start string, delta uint64, want string) error {
	key := e.key(10)
	apply := e.Client.Decr
	if incr {
		apply = e.Client.Incr
	}

	if !noreply {
		_, err := apply(ctx, key, delta, false)
		if err := expectErr(err, text.ErrItemNotFound); err != nil {
			return err
		}
	}
	if err := e.Client.Set(ctx, text.Item{Key: key, Value: []byte(start)}, 0, false); err != nil {
		return err
	}

	got, err := apply(ctx, key, delta, noreply)
	if err != nil {
		return err
	}
	if noreply {
		return expectValue(ctx, e, key, []byte(want))
	}
	if got != want {
		return failf("expected %s, got %s", want, got)
	}
	return nil
}

func testDecr(ctx context.Context, e *Env) error {
	return testArith(ctx, e, false, false, "1", 1, "0")
}

func testDecrNoReply(ctx context.Context, e *Env) error {
	return testArith(ctx, e, false, true, "1", 1, "0")
}

func testIncr(ctx context.Context, e *Env) error {
	return testArith(ctx, e, true, false, "1", 40, "41")
}

func testIncrNoReply(ctx context.Context, e *Env) error {
	return testArith(ctx, e, true, true, "1", 1, "2")
}

func testDecrUnderflow(ctx context.Context, e *Env) error {
	return testArith(ctx, e, false, false, "0", 1, "0")
}

func testIncrOverflow(ctx context.Context, e *Env) error {
	return testArith(ctx, e, true, false, strconv.FormatUint(1<<64-1, 10), 1, "0")
}

func testIncrOverSize(ctx context.Context, e *Env) error {
	key := e.key(10)
	if err := e.Client.Set(ctx, text.Item{Key: key, Value: []byte("18446744073709551616")}, 0, false); err != nil {
		return err
	}
	_, err := e.Client.Incr(ctx, key, 1, false)
	return expectClientError(err)
}

func testDelete(ctx context.Context, e *Env) error {
	item := text.Item{Key: e.key(8), Value: e.value(10, 10)}

	if err := expectErr(e.Client.Delete(ctx, item.Key, false), text.ErrItemNotFound); err != nil {
		return err
	}
	if err := e.Client.Set(ctx, item, 0, false); err != nil {
		return err
	}
	if err := e.Client.Delete(ctx, item.Key, false); err != nil {
		return err
	}
	_, err := e.Client.Get(ctx, item.Key)
	return expectErr(err, text.ErrItemNotFound)
}

func testDeleteNoReply(ctx context.Context, e *Env) error {
	item := text.Item{Key: e.key(8), Value: e.value(10, 10)}

	if err := e.Client.Set(ctx, item, 0, false); err != nil {
		return err
	}
	if err := e.Client.Delete(ctx, item.Key, true); err != nil {
		return err
	}
	_, err := e.Client.Get(ctx, item.Key)
	return expectErr(err, text.ErrItemNotFound)
}

func testFlushAll(ctx context.Context, e *Env) error {
	before := text.Item{Key: e.key(4), Value: e.value(5, 8)}

	if err := e.Client.Set(ctx, before, 0, false); err != nil {
		return err
	}
	if err := e.Client.FlushAll(ctx, 0, false); err != nil {
		return err
	}
	_, err := e.Client.Get(ctx, before.Key)
	if err := expectErr(err, text.ErrItemNotFound); err != nil {
		return err
	}

	after := text.Item{Key: e.key(4), Value: e.value(5, 8)}
	if err := e.Client.Set(ctx, after, 0, false); err != nil {
		return err
	}
	return expectValue(ctx, e, after.Key, after.Value)
}

func testSetGetSmallKey(ctx context.Context, e *Env) error {
	item := text.Item{Key: e.key(4), Value: e.value(5, 8)}
	if err := e.Client.Set(ctx, item, 0, false); err != nil {
		return err
	}
	return expectValue(ctx, e, item.Key, item.Value)
}

func testSetGetLargeValue(ctx context.Context, e *Env) error {
	item := text.Item{Key: e.key(10), Value: e.value(1<<19, 1<<19)}
	if err := e.Client.Set(ctx, item, 0, false); err != nil {
		return err
	}
	return expectValue(ctx, e, item.Key, item.Value)
}

func testSetFlags(ctx context.Context, e *Env) error {
	item := text.Item{Key: e.key(10), Flags: 15, Value: e.value(10, 10)}
	if err := e.Client.Set(ctx, item, 0, false); err != nil {
		return err
	}
	got, err := e.Client.Get(ctx, item.Key)
	if err != nil {
		return err
	}
	if got.Flags != item.Flags || string(got.Value) != string(item.Value) {
		return failf("expected flags %d and %q, got %d and %q", item.Flags, item.Value, got.Flags, got.Value)
	}
	return nil
}

func testSetNoReply(ctx context.Context, e *Env) error {
	item := text.Item{Key: e.key(10), Value: e.value(10, 10)}
	if err := e.Client.Set(ctx, item, 0, true); err != nil {
		return err
	}
	return expectValue(ctx, e, item.Key, item.Value)
}

func testGetMultiple(ctx context.Context, e *Env) error {
	first := text.Item{Key: e.key(10), Value: e.value(10, 10)}
	missing := e.key(10)
	third := text.Item{Key: e.key(10), Value: e.value(10, 10)}

	for _, item := range []text.Item{first, third} {
		if err := e.Client.Set(ctx, item, 0, false); err != nil {
			return err
		}
	}

	items, err := e.Client.GetMulti(ctx, []string{first.Key, missing, third.Key})
	if err != nil {
		return err
	}
	if len(items) != 2 {
		return failf("expected 2 items, got %d", len(items))
	}
	if string(items[first.Key].Value) != string(first.Value) || string(items[third.Key].Value) != string(third.Value) {
		return failf("unexpected values %v", items)
	}
	return nil
}

func testGets(ctx context.Context, e *Env) error {
	item := text.Item{Key: e.key(8), Value: e.value(10, 10)}

	if err := e.Client.Set(ctx, item, 0, false); err != nil {
		return err
	}
	first, err := e.Client.Gets(ctx, item.Key)
	if err != nil {
		return err
	}

	// Storing again changes the token, even with the same value.
	if err := e.Client.Set(ctx, item, 0, false); err != nil {
		return err
	}
	second, err := e.Client.Gets(ctx, item.Key)
	if err != nil {
		return err
	}
	if first.CAS == second.CAS {
		return failf("cas unique did not change: %d", first.CAS)
	}
	return nil
}

func testGetsMulti(ctx context.Context, e *Env) error {
	first := text.Item{Key: e.key(8), Value: e.value(10, 10)}
	second := text.Item{Key: e.key(8), Value: e.value(10, 10)}

	for _, item := range []text.Item{first, second} {
		if err := e.Client.Set(ctx, item, 0, false); err != nil {
			return err
		}
	}

	items, err := e.Client.GetsMulti(ctx, []string{first.Key, second.Key})
	if err != nil {
		return err
	}
	for _, want := range []text.Item{first, second} {
		got := items[want.Key]
		if string(got.Value) != string(want.Value) {
			return failf("%s: expected %q, got %q", want.Key, want.Value, got.Value)
		}
		if got.CAS == 0 {
			return failf("%s: no cas unique", want.Key)
		}
	}
	return nil
}

func testCAS(ctx context.Context, e *Env) error {
	key := e.key(8)

	if err := expectErr(e.Client.CompareAndSwap(ctx, text.Item{Key: key, Value: []byte("x"), CAS: 1}, 0, false), text.ErrItemNotFound); err != nil {
		return err
	}
	if err := e.Client.Set(ctx, text.Item{Key: key, Value: e.value(10, 10)}, 0, false); err != nil {
		return err
	}
	item, err := e.Client.Gets(ctx, key)
	if err != nil {
		return err
	}

	item.Value = e.value(10, 10)
	if err := e.Client.CompareAndSwap(ctx, item, 0, false); err != nil {
		return err
	}
	if err := expectErr(e.Client.CompareAndSwap(ctx, item, 0, false), text.ErrCASConflict); err != nil {
		return err
	}
	return expectValue(ctx, e, key, item.Value)
}

func testStats(ctx context.Context, e *Env) error {
	stats, err := e.Client.Stats(ctx)
	if err != nil {
		return err
	}
	for _, name := range []string{"pid", "version", "curr_items", "bytes", "limit_maxbytes"} {
		if _, ok := stats[name]; !ok {
			return failf("stat %s missing", name)
		}
	}
	for name, value := range stats {
		e.Log.Debug("%s: %s", name, value)
	}
	return nil
}

func testVersion(ctx context.Context, e *Env) error {
	version, err := e.Client.Version(ctx)
	if err != nil {
		return err
	}
	if version == "" {
		return failf("empty version")
	}
	e.Log.Info("%s", version)
	return nil
}

func testQuit(ctx context.Context, e *Env) error {
	return e.Client.Quit(ctx)
}

func testGetInvalidKey(ctx context.Context, e *Env) error {
	key := e.key(10)
	if err := e.Client.Delete(ctx, key, true); err != nil {
		return err
	}
	_, err := e.Client.Get(ctx, key)
	return expectErr(err, text.ErrItemNotFound)
}

func testSetMaxKey(ctx context.Context, e *Env) error {
	item := text.Item{Key: e.key(text.MaxKeyLength), Value: e.value(1, 1)}
	if err := e.Client.Set(ctx, item, 0, false); err != nil {
		return err
	}
	return expectValue(ctx, e, item.Key, item.Value)
}

func testSetTooLargeKey(ctx context.Context, e *Env) error {
	item := text.Item{Key: e.key(text.MaxKeyLength + 1), Value: e.value(1, 1)}
	if err := expectClientError(e.Client.Set(ctx, item, 0, false)); err != nil {
		return err
	}

	// The same client goes on with the next command.
	item = text.Item{Key: e.key(10), Value: e.value(1, 10)}
	if err := e.Client.Set(ctx, item, 0, false); err != nil {
		return err
	}
	return expectValue(ctx, e, item.Key, item.Value)
}

func testSetTooLargeValue(ctx context.Context, e *Env) error {
	item := text.Item{Key: e.key(10), Value: e.value(1<<21, 1<<21)}
	return expectServerError(e.Client.Set(ctx, item, 0, false))
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// testExpires stores an item with exptime, checks it is there, then gone
// after wait.
func testExpires(ctx context.Context, e *Env, exptime int64, wait time.Duration) error {
	item := text.Item{Key: e.key(10), Value: e.value(10, 10)}
	if err := e.Client.Set(ctx, item, exptime, false); err != nil {
		return err
	}
	if err := expectValue(ctx, e, item.Key, item.Value); err != nil {
		return err
	}
	if err := sleep(ctx, wait); err != nil {
		return err
	}
	_, err := e.Client.Get(ctx, item.Key)
	return expectErr(err, text.ErrItemNotFound)
}

func testSetExptimeAbs(ctx context.Context, e *Env) error {
	// The server clock is the reference, not ours.
	stats, err := e.Client.Stats(ctx)
	if err != nil {
		return err
	}
	now, err := strconv.ParseInt(stats["time"], 10, 64)
	if err != nil {
		return failf("stat time: %w", err)
	}
	return testExpires(ctx, e, now+1, 2300*time.Millisecond)
}

func testSetExptimeRel(ctx context.Context, e *Env) error {
	return testExpires(ctx, e, 1, 1100*time.Millisecond)
}

// testTouchKeepsAlive extends an item expiring in 3s halfway through, then
// checks it outlived its original expiration.
func testTouchKeepsAlive(ctx context.Context, e *Env, noreply bool) error {
	item := text.Item{Key: e.key(8), Value: e.value(10, 10)}

	if !noreply {
		if err := expectErr(e.Client.Touch(ctx, item.Key, 3, false), text.ErrItemNotFound); err != nil {
			return err
		}
	}
	if err := e.Client.Set(ctx, item, 3, false); err != nil {
		return err
	}
	if err := sleep(ctx, 1500*time.Millisecond); err != nil {
		return err
	}
	if err := e.Client.Touch(ctx, item.Key, 3, noreply); err != nil {
		return err
	}
	if err := sleep(ctx, 2*time.Second); err != nil {
		return err
	}
	return expectValue(ctx, e, item.Key, item.Value)
}

func testTouch(ctx context.Context, e *Env) error        { return testTouchKeepsAlive(ctx, e, false) }
func testTouchNoReply(ctx context.Context, e *Env) error { return testTouchKeepsAlive(ctx, e, true) }
