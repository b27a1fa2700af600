package imagegen

import "context"

// placeholderURL renders "Image Generation Failed\n(Check API Balance)" on a
// 1024x1024 placeholder image.
const placeholderURL = "https://placehold.co/1024x1024/png?text=Image%20Generation%20Failed%0A(Check%20API%20Balance)"

// Placeholder never fails.
type Placeholder struct{}

func (Placeholder) Name() string { return "placeholder" }

func (Placeholder) Generate(context.Context, Request) (string, error) {
	return placeholderURL, nil
}
