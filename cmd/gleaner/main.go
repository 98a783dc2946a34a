// Gleaner - Cloud Waste Detection Engine
// Enumerate. Evaluate. Price.
package main

func main() {
	Execute()
}
