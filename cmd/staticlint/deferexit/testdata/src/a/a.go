package a

import (
	"log"
	"os"
)

func cleanup() {}

func exitAfterDefer() {
	defer cleanup()
	os.Exit(1) // want "os.Exit skips the deferred calls of exitAfterDefer"
}

func fatalAfterDefer() {
	defer cleanup()
	log.Fatalf("failed: %d", 1) // want "log.Fatalf skips the deferred calls of fatalAfterDefer"
}

func exitWithoutDefer() {
	os.Exit(run())
}

func deferInCaller() {
	defer cleanup()
	go func() {
		os.Exit(3)
	}()
}

func deferInLiteral() {
	func() {
		defer cleanup()
		log.Fatal("boom") // want "log.Fatal skips the deferred calls of a function literal"
	}()
}

func run() int {
	return 0
}
