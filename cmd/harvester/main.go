// Package main provides the harvester CLI for the Grateful Dead Archive Online.
//
// Usage:
//
//	harvester crawl   [--max-depth N] [--start-url URL]
//	harvester harvest [--max-pages N] [--max-items N] [--resume=false]
//	harvester resume
//	harvester validate
//
// See --help for all available options.
package main

func main() {
	Execute()
}
