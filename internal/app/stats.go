package app

import (
	"bytes"
	"fmt"
	"time"

	"github.com/wcharczuk/go-chart/v2"
)

// generateJoinChart рисует PNG-график новых пользователей по дням за
// последние две недели.
func generateJoinChart(users []User) ([]byte, error) {
	const days = 14

	perDay := map[string]int{}
	for _, u := range users {
		perDay[u.JoinedAt.Format("2006-01-02")]++
	}

	var dates []time.Time
	var values []float64
	for i := days - 1; i >= 0; i-- {
		d := time.Now().AddDate(0, 0, -i)
		dates = append(dates, d)
		values = append(values, float64(perDay[d.Format("2006-01-02")]))
	}

	graph := chart.Chart{
		Background: chart.Style{Padding: chart.Box{Top: 20, Left: 20, Right: 20, Bottom: 20}},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Новые игроки",
				XValues: dates,
				YValues: values,
				Style:   chart.Style{StrokeColor: chart.ColorBlue, StrokeWidth: 5.0, DotColor: chart.ColorWhite, DotWidth: 4.0},
			},
		},
		XAxis:  chart.XAxis{Name: "Дни", ValueFormatter: chart.TimeValueFormatterWithFormat("02 Jan")},
		YAxis:  chart.YAxis{Name: "Кол-во игроков", ValueFormatter: func(v interface{}) string { return fmt.Sprintf("%.0f", v.(float64)) }},
		Height: 400,
		Width:  800,
	}

	buffer := bytes.NewBuffer([]byte{})
	err := graph.Render(chart.PNG, buffer)
	return buffer.Bytes(), err
}
