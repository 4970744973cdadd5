// Command demo reproduces the classic two-party deadlock scenario in
// isolation, in-process, and prints its outcome: T1 wants x then y, T2
// wants y then x, and the younger of the two loses.
package main

import (
	"fmt"
	"sync"
	"time"

	"lockkv/pkg/engine"
)

func main() {
	e := engine.New(engine.DefaultConfig(), nil, nil)

	seed, err := e.Begin()
	if err != nil {
		panic(err)
	}
	must(e.Put(seed, "x", []byte("1")))
	must(e.Put(seed, "y", []byte("2")))
	must(e.Commit(seed))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		runTxn(e, "T1", "x", "y", "100")
	}()
	time.Sleep(200 * time.Millisecond)
	go func() {
		defer wg.Done()
		runTxn(e, "T2", "y", "x", "200")
	}()
	wg.Wait()

	final, err := e.Begin()
	if err != nil {
		panic(err)
	}
	x, _ := e.Get(final, "x")
	y, _ := e.Get(final, "y")
	fmt.Printf("final: x=%s y=%s\n", x, y)
	e.Abort(final)
}

// runTxn reads firstKey, holds it briefly, then attempts to also write
// secondKey := newVal. name is only used for log lines.
func runTxn(e *engine.Engine, name, firstKey, secondKey, newVal string) {
	t, err := e.Begin()
	if err != nil {
		fmt.Printf("%s begin failed: %v\n", name, err)
		return
	}
	fmt.Printf("%s id=%d seq=%d begin\n", name, t.ID(), t.StartSeq())

	v, err := e.Get(t, firstKey)
	if err != nil {
		fmt.Printf("%s get %s failed: %v\n", name, firstKey, err)
		e.Abort(t)
		return
	}
	fmt.Printf("%s read %s=%s\n", name, firstKey, v)

	time.Sleep(time.Second)
	fmt.Printf("%s trying to put %s=%s\n", name, secondKey, newVal)
	if err := e.Put(t, secondKey, []byte(newVal)); err != nil {
		fmt.Printf("%s put %s failed: %v\n", name, secondKey, err)
		e.Abort(t)
		return
	}

	if err := e.Commit(t); err != nil {
		fmt.Printf("%s commit failed: %v\n", name, err)
		return
	}
	fmt.Printf("%s committed\n", name)
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
