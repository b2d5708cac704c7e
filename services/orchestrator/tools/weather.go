// Copyright (C) 2025 SmartBot Labs (eng@smartbot-labs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"context"
	"fmt"
)

// WeatherReport is the deterministic mocked structure returned by the
// weather tool. Values never vary between calls for the same city.
type WeatherReport struct {
	City        string `json:"city"`
	Temperature string `json:"temperature"`
	Condition   string `json:"condition"`
}

// mockWeatherData keys known cities to fixed reports. Unknown cities get
// defaultWeather with the requested city name echoed back.
var mockWeatherData = map[string]WeatherReport{
	"Beijing":   {City: "Beijing", Temperature: "22°C", Condition: "Sunny"},
	"Shanghai":  {City: "Shanghai", Temperature: "26°C", Condition: "Cloudy"},
	"Guangzhou": {City: "Guangzhou", Temperature: "30°C", Condition: "Showers"},
	"Shenzhen":  {City: "Shenzhen", Temperature: "29°C", Condition: "Partly cloudy"},
	"Hangzhou":  {City: "Hangzhou", Temperature: "24°C", Condition: "Overcast"},
	"Chengdu":   {City: "Chengdu", Temperature: "20°C", Condition: "Light rain"},
}

var defaultWeather = WeatherReport{Temperature: "25°C", Condition: "Sunny"}

// WeatherTool looks up mocked weather by city name.
type WeatherTool struct{}

// NewWeatherTool creates the built-in weather lookup tool.
func NewWeatherTool() *WeatherTool {
	return &WeatherTool{}
}

func (w *WeatherTool) Describe() Descriptor {
	return Descriptor{
		Name:        "get_weather",
		Description: "Look up the current weather for a city",
		Parameters: map[string]ParamSpec{
			"city": {
				Type:        "string",
				Required:    true,
				Description: "Name of the city to look up",
			},
		},
	}
}

func (w *WeatherTool) Invoke(ctx context.Context, args map[string]any) (any, error) {
	city, _ := args["city"].(string)
	if city == "" {
		return nil, fmt.Errorf("city must not be empty")
	}
	if report, ok := mockWeatherData[city]; ok {
		return report, nil
	}
	report := defaultWeather
	report.City = city
	return report, nil
}
