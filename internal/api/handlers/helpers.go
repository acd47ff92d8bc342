package handlers

import (
	"github.com/gofiber/fiber/v2"
)

func GetBrandID(c *fiber.Ctx) string {
	brandID, _ := c.Locals("brand_id").(string)
	return brandID
}
