package presenter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Proton-105/himera-shop/internal/domain"
	"github.com/Proton-105/himera-shop/internal/event"
)

// Weights offered on a product card, in kg.
var Weights = []int{1, 3, 5}

const (
	menuHeader      = "Please choose:"
	emailPromptText = "Please send me your email"
	checkoutText    = "We will contact you!"
	startHintText   = "Please send /start to begin"
	noCartText      = "Your cart is gone, please return to the menu"
)

var (
	cartChoice = Choice{Label: "Cart", Token: event.VerbCart}
	backChoice = Choice{Label: "Back", Token: event.VerbBack}
	payChoice  = Choice{Label: "Pay", Token: event.VerbPay}
	menuChoice = Choice{Label: "Menu", Token: event.VerbMenu}
)

// MenuView lists every product plus the cart entry.
func MenuView(products []domain.Product) Message {
	choices := make([][]Choice, 0, len(products)+1)
	for _, product := range products {
		choices = append(choices, []Choice{{
			Label: product.Name,
			Token: event.Selection{Verb: event.VerbDescription, Args: []string{product.ID}}.Token(),
		}})
	}
	choices = append(choices, []Choice{cartChoice})

	return Message{Text: menuHeader, Choices: choices}
}

// ProductView is the product card with buy-weight choices.
func ProductView(product domain.Product, imageURL string) Message {
	weights := make([]Choice, 0, len(Weights))
	for _, w := range Weights {
		weights = append(weights, Choice{
			Label: fmt.Sprintf("%d kg", w),
			Token: event.Selection{Verb: event.VerbBuy, Args: []string{product.ID, strconv.Itoa(w)}}.Token(),
		})
	}

	var text strings.Builder
	text.WriteString(product.Name)
	text.WriteString("\n\n")
	fmt.Fprintf(&text, "%s per kg\n", product.Price)
	fmt.Fprintf(&text, "%d kg available", product.Stock)
	if product.Description != "" {
		text.WriteString("\n\n")
		text.WriteString(product.Description)
	}

	return Message{
		Text:     text.String(),
		PhotoURL: imageURL,
		Choices: [][]Choice{
			weights,
			{cartChoice},
			{backChoice},
		},
	}
}

// CartView lists cart lines, the backend total and the remove/pay/menu choices.
func CartView(cart domain.Cart, lines []domain.CartLine) Message {
	blocks := make([]string, 0, len(lines)+1)
	choices := make([][]Choice, 0, len(lines)+2)

	for _, line := range lines {
		block := []string{line.Name}
		if line.Description != "" {
			block = append(block, line.Description)
		}
		block = append(block,
			fmt.Sprintf("%s per kg", line.UnitPrice),
			fmt.Sprintf("%d kg in cart for %s", line.Quantity, line.Total),
		)
		blocks = append(blocks, strings.Join(block, "\n"))

		choices = append(choices, []Choice{{
			Label: "Remove " + line.Name,
			Token: event.Selection{Verb: event.VerbRemove, Args: []string{line.ID}}.Token(),
		}})
	}
	blocks = append(blocks, "Total: "+cart.Total)
	choices = append(choices, []Choice{payChoice}, []Choice{menuChoice})

	return Message{Text: strings.Join(blocks, "\n\n"), Choices: choices}
}

// EmailPromptView asks for the checkout email.
func EmailPromptView() Message { return Message{Text: emailPromptText} }

// CheckoutDoneView confirms a registered checkout.
func CheckoutDoneView() Message { return Message{Text: checkoutText} }

// StartHintView tells an unknown user how to begin.
func StartHintView() Message { return Message{Text: startHintText} }

// NoCartView sends the user back to the menu when the cart is missing.
func NoCartView() Message {
	return Message{Text: noCartText, Choices: [][]Choice{{menuChoice}}}
}

// AddedToCartText acknowledges a purchase tap.
const AddedToCartText = "Product added to cart!"
