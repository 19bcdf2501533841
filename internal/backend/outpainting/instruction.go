package outpainting

import (
	"fmt"
	"strings"
)

// Task names what the model is asked to produce relative to its context.
type Task int

const (
	// TaskExtendTop asks for content that sits above the context strip.
	TaskExtendTop Task = iota
	// TaskExtendBottom asks for content that sits below the context strip.
	TaskExtendBottom
	// TaskNewSection asks for a whole section between optional neighbours.
	TaskNewSection
)

const defaultIntent = "continue the existing scene naturally"

// Instruction is the natural-language request sent with the context images.
type Instruction struct {
	Task             Task
	Width            int
	Height           int
	Intent           string
	HasAbove         bool
	HasBelow         bool
	HasReference     bool
	DesignDefinition string
}

func (i Instruction) String() string {
	var b strings.Builder

	switch i.Task {
	case TaskExtendTop:
		b.WriteString("Restore the missing content directly above the provided image strip. ")
		b.WriteString("The bottom edge of your output must continue the top edge of the strip seamlessly, ")
		b.WriteString("matching its colors, lighting, style and content.\n")
	case TaskExtendBottom:
		b.WriteString("Restore the missing content directly below the provided image strip. ")
		b.WriteString("The top edge of your output must continue the bottom edge of the strip seamlessly, ")
		b.WriteString("matching its colors, lighting, style and content.\n")
	case TaskNewSection:
		b.WriteString("Create a new section of a vertically scrolling page.\n")
		if i.HasAbove {
			b.WriteString("The first image is the bottom edge of the section above. Your top edge must continue it seamlessly.\n")
		}
		if i.HasBelow {
			b.WriteString("The next image is the top edge of the section below. Your bottom edge must lead into it seamlessly.\n")
		}
	}

	fmt.Fprintf(&b, "Output exactly %dx%d pixels (width x height).\n", i.Width, i.Height)

	intent := strings.TrimSpace(i.Intent)
	if intent == "" {
		intent = defaultIntent
	}
	fmt.Fprintf(&b, "User intent: %s\n", intent)

	if i.HasReference {
		b.WriteString("The last image is a style reference. Match its visual style, not its layout.\n")
	}
	if d := strings.TrimSpace(i.DesignDefinition); d != "" {
		fmt.Fprintf(&b, "Design definition:\n%s\n", d)
	}

	b.WriteString("Do not add borders, frames, captions or visible seams. Return only the image.")
	return b.String()
}
