// Command manimgpt turns a video idea into a rendered Manim animation.
package main

import "github.com/freQuensy23-coder/manim-gpt/internal/cli"

func main() {
	cli.Execute()
}
